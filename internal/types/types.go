// Package types provides common type definitions for the portfolio tracker system.
package types

import "math"

// Confidence classifies how trustworthy a computed APY figure is.
type Confidence string

const (
	// ConfidenceHigh means the position has full continuous history for the requested period
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means history exists but is shorter than requested or has a gap
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means the position is new, was reactivated, or the APY is an outlier
	ConfidenceLow Confidence = "low"
)

// FeePaymentStatus represents the payment state of accrued performance fees for a period.
type FeePaymentStatus string

const (
	// FeePaid means accrued performance fees for the period have been settled in full
	FeePaid FeePaymentStatus = "paid"
	// FeeNotPaid means no accrued performance fees have been settled
	FeeNotPaid FeePaymentStatus = "not_paid"
	// FeePartiallyPaid means a partial payment has been applied against the accrued fee
	FeePartiallyPaid FeePaymentStatus = "partially_paid"
)

// PriorNavSource records where a period's prior pre-fee NAV came from.
type PriorNavSource string

const (
	// PriorNavManual means the value was entered by the user
	PriorNavManual PriorNavSource = "manual"
	// PriorNavAutoLoaded means the value was rolled over from the preceding month
	PriorNavAutoLoaded PriorNavSource = "auto_loaded"
	// PriorNavPortfolioEstimate means the current portfolio value was used as baseline
	PriorNavPortfolioEstimate PriorNavSource = "portfolio_estimate"
	// PriorNavFallback means no prior value was available and 0 was assumed
	PriorNavFallback PriorNavSource = "fallback"
	// PriorNavFallbackNeeded signals the caller that no prior period exists yet
	PriorNavFallbackNeeded PriorNavSource = "fallback_needed"
)

// HurdleRateType determines how the hurdle rate is converted to a period amount.
type HurdleRateType string

const (
	// HurdleAnnual means the hurdle rate is an annual percentage, divided by 12 per period
	HurdleAnnual HurdleRateType = "annual"
	// HurdleMonthly means the hurdle rate is already a monthly percentage
	HurdleMonthly HurdleRateType = "monthly"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// SanitizeUSD coerces a monetary value to a finite, non-negative number.
// NaN and infinities collapse to 0; negative USD values are upstream data
// errors in this model, not genuine debt positions, and are floored to 0.
func SanitizeUSD(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	return v
}

// SanitizeAmount coerces a token amount to a finite, non-negative number.
func SanitizeAmount(v float64) float64 {
	return SanitizeUSD(v)
}
