// Package apy derives annualized per-position yields from persisted
// position-history points, with a confidence classification attached to
// every result. The engine always returns a best-effort number with a
// label rather than failing: the dashboard always needs something to render.
package apy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/types"
)

const (
	daysPerYear = 365

	// absoluteCeilingPct is the sanity ceiling above which an APY is
	// classified low confidence regardless of history depth
	absoluteCeilingPct = 100.0

	// outlierDistancePct is how far from the batch median an APY may sit
	// before being flagged as a statistical outlier
	outlierDistancePct = 50.0

	// gapToleranceDays is the largest gap between consecutive history
	// points still considered continuous coverage
	gapToleranceDays = 2.0
)

// Result is the computed yield for a single position
type Result struct {
	PositionID    string           `json:"positionId"`
	ProtocolName  string           `json:"protocolName"`
	APY           float64          `json:"apy"`
	Confidence    types.Confidence `json:"confidence"`
	Warnings      []string         `json:"warnings,omitempty"`
	IsNewPosition bool             `json:"isNewPosition"`
}

// HistorySource supplies position-history points for a user at or before a date
type HistorySource interface {
	ListUserHistory(ctx context.Context, userID string, upTo time.Time) ([]models.PositionHistory, error)
}

// Engine computes APYs from position history. Read-then-compute only:
// inputs never mutate state and no locking is required.
type Engine struct {
	history HistorySource
}

// NewEngine creates an APY engine backed by the given history source
func NewEngine(history HistorySource) *Engine {
	return &Engine{history: history}
}

// CalculateAllPositionAPYs computes an annualized return and confidence label
// for every position the user held at or before targetDate, looking back
// periodDays for the reference point.
func (e *Engine) CalculateAllPositionAPYs(ctx context.Context, userID string, targetDate time.Time, periodDays int) (map[string]Result, error) {
	if periodDays <= 0 {
		return nil, &types.ServiceError{
			Code:    "INVALID_PERIOD",
			Message: fmt.Sprintf("period must be a positive number of days, got %d", periodDays),
		}
	}

	rows, err := e.history.ListUserHistory(ctx, userID, targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load position history for user %s: %w", userID, err)
	}

	byPosition := groupByPosition(rows)

	results := make(map[string]Result, len(byPosition))
	for id, history := range byPosition {
		r := calculate(id, history, targetDate, periodDays)
		if r == nil {
			continue
		}
		results[id] = *r
	}

	applyOutlierChecks(results)

	return results, nil
}

// groupByPosition buckets history rows by position ID, sorted by date ascending
func groupByPosition(rows []models.PositionHistory) map[string][]models.PositionHistory {
	grouped := make(map[string][]models.PositionHistory)
	for _, row := range rows {
		grouped[row.PositionID] = append(grouped[row.PositionID], row)
	}
	for id := range grouped {
		sort.Slice(grouped[id], func(i, j int) bool {
			return grouped[id][i].Date.Before(grouped[id][j].Date)
		})
	}
	return grouped
}

// calculate derives one position's APY. Returns nil when the position has
// dropped out of the portfolio (latest record inactive) and is excluded from
// the APY window.
func calculate(positionID string, history []models.PositionHistory, targetDate time.Time, periodDays int) *Result {
	if len(history) == 0 {
		return nil
	}

	current := latestAtOrBefore(history, targetDate)
	if current == nil {
		return nil
	}
	if !current.IsActive {
		// Disappeared from the upstream; excluded without being deleted
		return nil
	}

	result := &Result{
		PositionID:   positionID,
		ProtocolName: current.ProtocolName,
	}

	referenceDate := targetDate.AddDate(0, 0, -periodDays)
	earlier := latestAtOrBefore(history, referenceDate)

	if earlier == nil {
		estimateNewPosition(result, history, current, targetDate)
		return result
	}

	elapsedDays := current.Date.Sub(earlier.Date).Hours() / 24
	if elapsedDays <= 0 {
		result.APY = 0
		result.Confidence = types.ConfidenceLow
		result.Warnings = append(result.Warnings,
			"reference points coincide; no elapsed time to derive a rate from")
		return result
	}

	value := types.SanitizeUSD(current.TotalValue)
	rewards := types.SanitizeUSD(current.UnclaimedRewardsValue)
	if value == 0 {
		result.APY = 0
		result.Confidence = types.ConfidenceLow
		result.Warnings = append(result.Warnings, "position value is zero; yield undefined")
		return result
	}

	periodReturn := rewards / value
	result.APY = annualize(periodReturn, float64(periodDays))
	result.Confidence = classifyHistory(history, referenceDate, current)

	return result
}

// estimateNewPosition handles positions with no record at the earlier
// reference point: the APY is estimated from the current unclaimed-rewards
// rate over the days since the position was first seen.
func estimateNewPosition(result *Result, history []models.PositionHistory, current *models.PositionHistory, targetDate time.Time) {
	result.IsNewPosition = true
	result.Confidence = types.ConfidenceLow

	firstSeen := history[0].Date
	elapsedDays := targetDate.Sub(firstSeen).Hours() / 24

	value := types.SanitizeUSD(current.TotalValue)
	rewards := types.SanitizeUSD(current.UnclaimedRewardsValue)

	if elapsedDays <= 0 || value == 0 {
		result.APY = 0
		result.Warnings = append(result.Warnings,
			"new position with no elapsed history; APY defaulted to 0")
		return
	}

	result.APY = annualize(rewards/value, elapsedDays)
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("estimated from %.1f days of reward accrual; insufficient history for the requested period", elapsedDays))
}

// annualize compounds a return observed over windowDays into a yearly
// percentage: (1 + r)^(365/windowDays) - 1
func annualize(periodReturn, windowDays float64) float64 {
	if windowDays <= 0 {
		return 0
	}
	apy := (math.Pow(1+periodReturn, daysPerYear/windowDays) - 1) * 100
	if math.IsNaN(apy) || math.IsInf(apy, 0) {
		return 0
	}
	return apy
}

// classifyHistory grades coverage quality for an established position:
// high needs continuous active history spanning the whole requested window,
// medium covers shorter or gappy history, reactivation drops to low.
func classifyHistory(history []models.PositionHistory, referenceDate time.Time, current *models.PositionHistory) types.Confidence {
	sawInactive := false
	var prev *models.PositionHistory
	gap := false

	for i := range history {
		row := &history[i]
		if row.Date.After(current.Date) {
			break
		}
		if row.Date.Before(referenceDate) {
			continue
		}
		if !row.IsActive {
			sawInactive = true
		}
		if prev != nil && row.Date.Sub(prev.Date).Hours()/24 > gapToleranceDays {
			gap = true
		}
		prev = row
	}

	if sawInactive {
		// Inactive-then-reactivated history cannot be trusted
		return types.ConfidenceLow
	}

	fullCoverage := !history[0].Date.After(referenceDate)
	if fullCoverage && !gap {
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}

// applyOutlierChecks demotes results whose APY breaches the absolute sanity
// ceiling or sits far outside the distribution of the batch. Outliers are
// still returned, never discarded.
func applyOutlierChecks(results map[string]Result) {
	apys := make([]float64, 0, len(results))
	for _, r := range results {
		apys = append(apys, r.APY)
	}
	med := median(apys)

	for id, r := range results {
		var reason string
		switch {
		case math.Abs(r.APY) > absoluteCeilingPct:
			reason = fmt.Sprintf("APY of %.1f%% exceeds the %.0f%% sanity ceiling", r.APY, absoluteCeilingPct)
		case len(results) >= 3 && math.Abs(r.APY-med) > outlierDistancePct:
			reason = fmt.Sprintf("APY of %.1f%% is a statistical outlier (batch median %.1f%%)", r.APY, med)
		default:
			continue
		}

		r.Confidence = types.ConfidenceLow
		r.Warnings = append(r.Warnings, reason)
		results[id] = r
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// latestAtOrBefore returns the most recent history point at or before the
// cutoff, or nil when none exists. History must be sorted ascending.
func latestAtOrBefore(history []models.PositionHistory, cutoff time.Time) *models.PositionHistory {
	var found *models.PositionHistory
	for i := range history {
		if history[i].Date.After(cutoff) {
			break
		}
		found = &history[i]
	}
	return found
}
