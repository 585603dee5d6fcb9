package service

import (
	"context"
	"fmt"

	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/nav"
	"github.com/defi-portfolio-tracker/internal/types"
)

// NavService manages monthly NAV reporting periods: lazy creation with prior
// period rollover, waterfall computation on save, and prior NAV lookup.
type NavService struct {
	settings  NavSettingsStore
	snapshots SnapshotStore
}

// NewNavService creates a new NAV service
func NewNavService(settings NavSettingsStore, snapshots SnapshotStore) *NavService {
	return &NavService{settings: settings, snapshots: snapshots}
}

// PriorNavResult describes where a period's prior NAV baseline can come from.
// SuggestedEstimate carries the latest portfolio total for first-month setup;
// it only becomes the baseline when the caller elects it
// (source portfolio_estimate) on save.
type PriorNavResult struct {
	Found             bool                 `json:"found"`
	PriorPreFeeNav    float64              `json:"priorPreFeeNav"`
	Source            types.PriorNavSource `json:"source"`
	SuggestedEstimate float64              `json:"suggestedEstimate,omitempty"`
}

// GetNav returns the settings for a (user, year, month) period. When the
// period has never been saved, defaults are returned with the prior NAV
// seeded from the preceding month; the period is not persisted until saved.
func (s *NavService) GetNav(ctx context.Context, userID string, year, month int) (*models.NavSettings, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	existing, err := s.settings.Get(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	settings := &models.NavSettings{
		UserID:      userID,
		Year:        year,
		Month:       month,
		FeeSettings: models.DefaultFeeSettings(),
	}

	prior, err := s.GetPriorNav(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}
	settings.FeeSettings.PriorPreFeeNav = prior.PriorPreFeeNav
	settings.FeeSettings.PriorPreFeeNavSource = prior.Source

	return settings, nil
}

// SaveNav computes the waterfall from the supplied totals and settings and
// persists the period. Validation warnings are attached to the result, never
// returned as errors.
func (s *NavService) SaveNav(ctx context.Context, userID string, year, month int, totals nav.PortfolioTotals, feeSettings models.FeeSettings) (*models.NavSettings, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	if err := validateFeeSettings(&feeSettings); err != nil {
		return nil, err
	}

	calc := nav.Compute(totals, feeSettings)
	if len(calc.ValidationWarnings) > 0 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"userId":   userID,
			"period":   fmt.Sprintf("%d-%02d", year, month),
			"warnings": calc.ValidationWarnings,
		}).Warn("NAV saved with validation warnings")
	}

	existing, err := s.settings.Get(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}

	settings := &models.NavSettings{
		UserID:          userID,
		Year:            year,
		Month:           month,
		FeeSettings:     feeSettings,
		NavCalculations: calc,
	}
	if existing != nil {
		settings.CreatedAt = existing.CreatedAt
	}

	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// GetPriorNav resolves the prior NAV baseline for a period: the preceding
// month's stored pre-fee NAV when available (auto_loaded), otherwise zero
// with source fallback_needed so the caller can prompt for first-month
// setup. The latest portfolio total rides along as a suggestion; it is
// never applied as the baseline unless the caller saves it explicitly.
func (s *NavService) GetPriorNav(ctx context.Context, userID string, year, month int) (*PriorNavResult, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	prior, err := s.settings.GetPrior(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return &PriorNavResult{
			Found:          true,
			PriorPreFeeNav: prior.NavCalculations.PreFeeNav,
			Source:         types.PriorNavAutoLoaded,
		}, nil
	}

	result := &PriorNavResult{Source: types.PriorNavFallbackNeeded}
	latest, err := s.snapshots.GetLatest(ctx, userID, "")
	if err == nil && latest != nil && latest.TotalNavUSD > 0 {
		result.SuggestedEstimate = latest.TotalNavUSD
	}
	return result, nil
}

// ResetNav deletes a period's settings. Administrative operation.
func (s *NavService) ResetNav(ctx context.Context, userID string, year, month int) error {
	if err := validatePeriod(year, month); err != nil {
		return err
	}
	return s.settings.Delete(ctx, userID, year, month)
}

func validatePeriod(year, month int) error {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		return &types.ServiceError{
			Code:    "INVALID_PERIOD",
			Message: fmt.Sprintf("invalid reporting period %d-%02d", year, month),
			Details: map[string]interface{}{
				"year":  year,
				"month": month,
			},
		}
	}
	return nil
}

// validateFeeSettings rejects structurally invalid inputs. Implausible but
// well-formed values flow through and surface as advisory warnings instead.
func validateFeeSettings(fs *models.FeeSettings) error {
	if fs.PerformanceFeeRate < 0 || fs.PerformanceFeeRate > 1 {
		return &types.ServiceError{
			Code:    "INVALID_FEE_SETTINGS",
			Message: fmt.Sprintf("performance fee rate %.4f must be within [0, 1]", fs.PerformanceFeeRate),
		}
	}
	if fs.AccruedPerformanceFeeRate < 0 || fs.AccruedPerformanceFeeRate > 1 {
		return &types.ServiceError{
			Code:    "INVALID_FEE_SETTINGS",
			Message: fmt.Sprintf("accrued performance fee rate %.4f must be within [0, 1]", fs.AccruedPerformanceFeeRate),
		}
	}
	if fs.HurdleRate < 0 {
		return &types.ServiceError{
			Code:    "INVALID_FEE_SETTINGS",
			Message: fmt.Sprintf("hurdle rate %.4f must not be negative", fs.HurdleRate),
		}
	}
	switch fs.HurdleRateType {
	case types.HurdleAnnual, types.HurdleMonthly, "":
	default:
		return &types.ServiceError{
			Code:    "INVALID_FEE_SETTINGS",
			Message: fmt.Sprintf("unknown hurdle rate type %q", fs.HurdleRateType),
		}
	}
	switch fs.FeePaymentStatus {
	case types.FeePaid, types.FeeNotPaid, types.FeePartiallyPaid, "":
	default:
		return &types.ServiceError{
			Code:    "INVALID_FEE_SETTINGS",
			Message: fmt.Sprintf("unknown fee payment status %q", fs.FeePaymentStatus),
		}
	}
	return nil
}
