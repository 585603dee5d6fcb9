package apy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory is an in-memory HistorySource for engine tests
type fakeHistory struct {
	rows []models.PositionHistory
	err  error
}

func (f *fakeHistory) ListUserHistory(_ context.Context, _ string, upTo time.Time) ([]models.PositionHistory, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PositionHistory
	for _, r := range f.rows {
		if !r.Date.After(upTo) {
			out = append(out, r)
		}
	}
	return out, nil
}

func day(offset int) time.Time {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func historyRow(positionID string, date time.Time, value, rewards float64, active bool) models.PositionHistory {
	return models.PositionHistory{
		UserID:                "user-1",
		WalletAddress:         "0xabc",
		ProtocolName:          "Curve",
		PositionID:            positionID,
		Date:                  date,
		TotalValue:            value,
		UnclaimedRewardsValue: rewards,
		IsActive:              active,
	}
}

// continuousRows builds daily active rows from startOffset to endOffset inclusive
func continuousRows(positionID string, startOffset, endOffset int, value, rewards float64) []models.PositionHistory {
	var rows []models.PositionHistory
	for i := startOffset; i <= endOffset; i++ {
		rows = append(rows, historyRow(positionID, day(i), value, rewards, true))
	}
	return rows
}

func TestCalculateAllPositionAPYs_FullHistory(t *testing.T) {
	// 30 days of continuous history, 1% rewards over the window:
	// APY = (1.01)^(365/30) - 1 = ~12.9%
	engine := NewEngine(&fakeHistory{rows: continuousRows("pos-1", 0, 30, 1000, 10)})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)
	require.Contains(t, results, "pos-1")

	r := results["pos-1"]
	expected := (math.Pow(1.01, 365.0/30.0) - 1) * 100
	assert.InDelta(t, expected, r.APY, 1e-6)
	assert.Equal(t, types.ConfidenceHigh, r.Confidence)
	assert.False(t, r.IsNewPosition)
	assert.Empty(t, r.Warnings)
}

func TestCalculateAllPositionAPYs_NewPosition(t *testing.T) {
	// First seen 5 days ago; no record at the 30-day reference point
	engine := NewEngine(&fakeHistory{rows: continuousRows("pos-1", 25, 30, 1000, 5)})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)
	require.Contains(t, results, "pos-1")

	r := results["pos-1"]
	assert.True(t, r.IsNewPosition)
	assert.Equal(t, types.ConfidenceLow, r.Confidence)
	assert.NotEmpty(t, r.Warnings)
	expected := (math.Pow(1+5.0/1000.0, 365.0/5.0) - 1) * 100
	assert.InDelta(t, expected, r.APY, 1e-6)
}

func TestCalculateAllPositionAPYs_ZeroElapsedTime(t *testing.T) {
	// A single same-day record satisfies both reference lookups:
	// no elapsed time, but the result must be a defined number, never NaN
	rows := []models.PositionHistory{historyRow("pos-1", day(0), 1000, 10, true)}
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(0), 0)
	assert.Error(t, err, "zero period is rejected as invalid input")

	results, err = engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(0), 30)
	require.NoError(t, err)
	require.Contains(t, results, "pos-1")

	r := results["pos-1"]
	assert.False(t, math.IsNaN(r.APY))
	assert.False(t, math.IsInf(r.APY, 0))
	assert.Equal(t, types.ConfidenceLow, r.Confidence)
}

func TestCalculateAllPositionAPYs_CoincidingReferencePoints(t *testing.T) {
	// Both lookups resolve to the same row: elapsed time is zero
	rows := []models.PositionHistory{historyRow("pos-1", day(0), 1000, 10, true)}
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(40), 30)
	require.NoError(t, err)

	r := results["pos-1"]
	assert.Equal(t, 0.0, r.APY)
	assert.Equal(t, types.ConfidenceLow, r.Confidence)
	assert.NotEmpty(t, r.Warnings)
}

func TestCalculateAllPositionAPYs_ZeroValuePosition(t *testing.T) {
	rows := continuousRows("pos-1", 0, 30, 0, 0)
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)

	r := results["pos-1"]
	assert.Equal(t, 0.0, r.APY)
	assert.Equal(t, types.ConfidenceLow, r.Confidence)
}

func TestCalculateAllPositionAPYs_InactivePositionExcluded(t *testing.T) {
	rows := continuousRows("pos-1", 0, 29, 1000, 10)
	rows = append(rows, historyRow("pos-1", day(30), 0, 0, false))
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)
	assert.NotContains(t, results, "pos-1")
}

func TestCalculateAllPositionAPYs_ReactivatedPositionIsLowConfidence(t *testing.T) {
	rows := continuousRows("pos-1", 0, 10, 1000, 5)
	rows = append(rows, historyRow("pos-1", day(11), 0, 0, false))
	rows = append(rows, continuousRows("pos-1", 12, 30, 1000, 5)...)
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)
	require.Contains(t, results, "pos-1")
	assert.Equal(t, types.ConfidenceLow, results["pos-1"].Confidence)
}

func TestCalculateAllPositionAPYs_GappyHistoryIsMediumConfidence(t *testing.T) {
	rows := continuousRows("pos-1", 0, 10, 1000, 5)
	// 10-day hole, then more history
	rows = append(rows, continuousRows("pos-1", 20, 30, 1000, 5)...)
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceMedium, results["pos-1"].Confidence)
}

func TestCalculateAllPositionAPYs_CeilingOutlier(t *testing.T) {
	// 50% rewards over 30 days annualizes far beyond the 100% ceiling
	engine := NewEngine(&fakeHistory{rows: continuousRows("pos-1", 0, 30, 1000, 500)})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)

	r := results["pos-1"]
	assert.Greater(t, r.APY, 100.0, "outlier results are returned, not discarded")
	assert.Equal(t, types.ConfidenceLow, r.Confidence)
	assert.NotEmpty(t, r.Warnings)
}

func TestCalculateAllPositionAPYs_DistributionOutlier(t *testing.T) {
	rows := continuousRows("pos-1", 0, 30, 1000, 10)
	rows = append(rows, continuousRows("pos-2", 0, 30, 1000, 11)...)
	rows = append(rows, continuousRows("pos-3", 0, 30, 1000, 9)...)
	// 5% over 30 days annualizes to ~81%: below the ceiling but far from the batch
	rows = append(rows, continuousRows("pos-4", 0, 30, 1000, 50)...)
	engine := NewEngine(&fakeHistory{rows: rows})

	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(30), 30)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, types.ConfidenceLow, results["pos-4"].Confidence)
	assert.Equal(t, types.ConfidenceHigh, results["pos-1"].Confidence)
}

func TestCalculateAllPositionAPYs_InvalidPeriod(t *testing.T) {
	engine := NewEngine(&fakeHistory{})
	_, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(0), -7)
	require.Error(t, err)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "INVALID_PERIOD", svcErr.Code)
}

func TestCalculateAllPositionAPYs_EmptyHistory(t *testing.T) {
	engine := NewEngine(&fakeHistory{})
	results, err := engine.CalculateAllPositionAPYs(context.Background(), "user-1", day(0), 30)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnnualize(t *testing.T) {
	tests := []struct {
		name         string
		periodReturn float64
		windowDays   float64
		expected     float64
	}{
		{name: "one percent over 30 days", periodReturn: 0.01, windowDays: 30, expected: (math.Pow(1.01, 365.0/30.0) - 1) * 100},
		{name: "zero return", periodReturn: 0, windowDays: 30, expected: 0},
		{name: "zero window", periodReturn: 0.5, windowDays: 0, expected: 0},
		{name: "full year is identity", periodReturn: 0.10, windowDays: 365, expected: 10.000000000000009},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, annualize(tt.periodReturn, tt.windowDays), 1e-9)
		})
	}
}
