// Package nav computes the monthly fund NAV waterfall: assets, liabilities,
// performance, the hurdle-gated performance fee, and accrued-fee tracking.
package nav

import (
	"fmt"
	"math"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/types"
)

// PortfolioTotals are the current portfolio values a NAV computation starts from
type PortfolioTotals struct {
	TokensValue           float64 `json:"tokensValue"`
	PositionsValue        float64 `json:"positionsValue"`
	UnclaimedRewardsValue float64 `json:"unclaimedRewardsValue"`
}

// Validation thresholds. Breaches are advisory warnings on the result,
// never errors: the save/compute must not be blocked by implausible data.
const (
	performanceHighRatio = 1.0  // |performance / prior| above this is unrealistically high
	performanceLowRatio  = -0.9 // performance / prior below this is unrealistically low
)

// Compute runs the full NAV fee waterfall for one reporting month.
//
// Deterministic and pure: identical inputs produce identical output. The
// net-flows sign convention is deposits positive, withdrawals negative, and
// net flows are added to performance so a deposit raises the NAV baseline
// without counting as organic growth.
func Compute(totals PortfolioTotals, params models.FeeSettings) models.NavCalculations {
	tokensValue := types.SanitizeUSD(totals.TokensValue)
	positionsValue := types.SanitizeUSD(totals.PositionsValue)
	rewardsValue := types.SanitizeUSD(totals.UnclaimedRewardsValue)

	calc := models.NavCalculations{}

	calc.Investments = tokensValue + positionsValue - rewardsValue
	calc.DividendsReceivable = rewardsValue
	calc.TotalAssets = calc.Investments + calc.DividendsReceivable
	calc.AccruedExpenses = params.MonthlyExpense
	calc.TotalLiabilities = calc.AccruedExpenses
	calc.PreFeeNav = calc.TotalAssets - calc.AccruedExpenses
	calc.Performance = calc.PreFeeNav - params.PriorPreFeeNav + params.NetFlows

	hurdleAmount := hurdleAmount(params)
	if calc.Performance > hurdleAmount {
		calc.PerformanceFee = math.Max(0, calc.Performance-hurdleAmount) * params.PerformanceFeeRate
	}

	calc.AccruedPerformanceFees = accruedFees(calc.DividendsReceivable, params)
	calc.NetAssets = calc.PreFeeNav - calc.PerformanceFee - calc.AccruedPerformanceFees
	calc.ValidationWarnings = validate(&calc, params)

	return calc
}

// hurdleAmount converts the configured hurdle rate into a dollar threshold
// for the period. Zero when no hurdle applies or there is no prior NAV base.
func hurdleAmount(params models.FeeSettings) float64 {
	if params.HurdleRate <= 0 || params.PriorPreFeeNav <= 0 {
		return 0
	}
	if params.HurdleRateType == types.HurdleAnnual {
		return params.HurdleRate / 100 / 12 * params.PriorPreFeeNav
	}
	return params.HurdleRate / 100 * params.PriorPreFeeNav
}

// accruedFees applies the three-state payment machine. The engine does not
// enforce transitions; the caller sets the status per period.
func accruedFees(dividendsReceivable float64, params models.FeeSettings) float64 {
	switch params.FeePaymentStatus {
	case types.FeePaid:
		return 0
	case types.FeePartiallyPaid:
		calculated := dividendsReceivable * params.AccruedPerformanceFeeRate
		return math.Max(0, calculated-params.PartialPaymentAmount)
	default: // not_paid
		return dividendsReceivable * params.AccruedPerformanceFeeRate
	}
}

// validate flags data-integrity anomalies on the result
func validate(calc *models.NavCalculations, params models.FeeSettings) []string {
	var warnings []string

	if params.PriorPreFeeNav > 0 {
		ratio := calc.Performance / params.PriorPreFeeNav
		if ratio > performanceHighRatio || ratio < -performanceHighRatio {
			warnings = append(warnings, fmt.Sprintf(
				"performance of %.1f%% relative to prior NAV is unrealistically high; verify prior NAV and net flows",
				ratio*100))
		} else if ratio < performanceLowRatio {
			warnings = append(warnings, fmt.Sprintf(
				"performance of %.1f%% relative to prior NAV is unrealistically low; verify prior NAV and net flows",
				ratio*100))
		}

		if math.Abs(params.NetFlows) > params.PriorPreFeeNav {
			warnings = append(warnings, fmt.Sprintf(
				"net flows of %.2f exceed prior NAV of %.2f; possible data-entry error",
				params.NetFlows, params.PriorPreFeeNav))
		}
	}

	if calc.PreFeeNav < 0 {
		warnings = append(warnings, fmt.Sprintf("pre-fee NAV is negative (%.2f)", calc.PreFeeNav))
	}

	return warnings
}
