package models

import (
	"time"

	"github.com/defi-portfolio-tracker/internal/types"
)

// FeeSettings holds the monthly NAV calculation inputs for a user
type FeeSettings struct {
	AnnualExpense             float64                `json:"annualExpense"`
	MonthlyExpense            float64                `json:"monthlyExpense"`
	PriorPreFeeNav            float64                `json:"priorPreFeeNav"`
	PriorPreFeeNavSource      types.PriorNavSource   `json:"priorPreFeeNavSource"`
	NetFlows                  float64                `json:"netFlows"`
	HurdleRate                float64                `json:"hurdleRate"`
	HurdleRateType            types.HurdleRateType   `json:"hurdleRateType"`
	HighWaterMark             float64                `json:"highWaterMark"`
	PerformanceFeeRate        float64                `json:"performanceFeeRate"`
	AccruedPerformanceFeeRate float64                `json:"accruedPerformanceFeeRate"`
	FeePaymentStatus          types.FeePaymentStatus `json:"feePaymentStatus"`
	PartialPaymentAmount      float64                `json:"partialPaymentAmount"`
}

// DefaultFeeSettings returns the settings used when a (user, month) period is
// created lazily on first read
func DefaultFeeSettings() FeeSettings {
	return FeeSettings{
		PriorPreFeeNavSource: types.PriorNavFallback,
		HurdleRateType:       types.HurdleAnnual,
		FeePaymentStatus:     types.FeeNotPaid,
	}
}

// NavCalculations holds the computed asset/liability/fee waterfall for a
// reporting month. Field names are stable: the report renderer maps them 1:1
// into spreadsheet rows.
type NavCalculations struct {
	Investments            float64  `json:"investments"`
	DividendsReceivable    float64  `json:"dividendsReceivable"`
	TotalAssets            float64  `json:"totalAssets"`
	AccruedExpenses        float64  `json:"accruedExpenses"`
	TotalLiabilities       float64  `json:"totalLiabilities"`
	PreFeeNav              float64  `json:"preFeeNav"`
	Performance            float64  `json:"performance"`
	PerformanceFee         float64  `json:"performanceFee"`
	AccruedPerformanceFees float64  `json:"accruedPerformanceFees"`
	NetAssets              float64  `json:"netAssets"`
	ValidationWarnings     []string `json:"validationWarnings,omitempty"`
}

// NavSettings is one persisted NAV reporting period per (user, year, month)
type NavSettings struct {
	UserID          string          `json:"userId" db:"user_id"`
	Year            int             `json:"year" db:"year"`
	Month           int             `json:"month" db:"month"`
	FeeSettings     FeeSettings     `json:"feeSettings" db:"fee_settings"`
	NavCalculations NavCalculations `json:"navCalculations" db:"nav_calculations"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}
