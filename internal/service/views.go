package service

import (
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
)

type OpenBillSummary struct {
	BillID           string             `json:"bill_id"`
	SeatingTier      domain.SeatingTier `json:"seating_tier"`
	StartTime        time.Time          `json:"start_time"`
	CurrentTotal     int64              `json:"current_total"`
	DisplayTotal     int64              `json:"display_total"`
	RemainingMinutes int                `json:"remaining_minutes"`
	RemainingLabel   string             `json:"remaining_label"`
	CastIDs          []string           `json:"cast_ids"`
	// TotalError is set when the bill's figures could not be computed; the
	// table is still listed.
	TotalError       string             `json:"total_error,omitempty"`
}

type TableStatus struct {
	Table    domain.FloorTable `json:"table"`
	OpenBill *OpenBillSummary  `json:"open_bill,omitempty"`
}

type BillDetail struct {
	Bill         domain.Bill              `json:"bill"`
	Orders       []domain.Order           `json:"orders"`
	Adjustments  []domain.PriceAdjustment `json:"adjustments"`
	Assignments  []domain.CastAssignment  `json:"assignments"`
	Designations []domain.BillDesignation `json:"designations"`
	View         engine.BillTotalView     `json:"view"`
}

type CustomerLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Charge   int64  `json:"charge"`
}

// CustomerBillView is the table-side view. It never carries cast, back or
// staff information.
type CustomerBillView struct {
	TableLabel            string                 `json:"table_label"`
	Status                domain.BillStatus      `json:"status"`
	StartTime             time.Time              `json:"start_time"`
	SeatingTier           domain.SeatingTier     `json:"seating_tier"`
	Lines                 []CustomerLine         `json:"lines"`
	AdjustmentTotal       int64                  `json:"adjustment_total"`
	CurrentTotal          int64                  `json:"current_total"`
	DisplayTotal          int64                  `json:"display_total"`
	PaymentMethod         domain.PaymentMethod   `json:"payment_method,omitempty"`
	CardSurchargeApplied  bool                   `json:"card_surcharge_applied"`
	ElapsedMinutes        int                    `json:"elapsed_minutes"`
	RemainingMinutes      int                    `json:"remaining_minutes"`
	ShowExtensionPreview  bool                   `json:"show_extension_preview"`
	ExtensionPreviewTotal int64                  `json:"extension_preview_total,omitempty"`
	PaymentMethods        []domain.PaymentMethod `json:"payment_methods"`
	GeneratedAt           time.Time              `json:"generated_at"`
}

type SettingsView struct {
	Settings engine.Settings       `json:"settings"`
	Stored   []domain.StoreSetting `json:"stored"`
}

type CastEarningsView struct {
	CastID       string `json:"cast_id"`
	CastName     string `json:"cast_name"`
	BusinessDate string `json:"business_date"`
	engine.CastEarningsBreakdown
}

type CastEarningsTotals struct {
	TimePay       int64 `json:"time_pay"`
	Backs         int64 `json:"backs"`
	Bonus         int64 `json:"bonus"`
	NetPayout     int64 `json:"net_payout"`
	ReferralBonus int64 `json:"referral_bonus"`
}

type CastEarningsSheet struct {
	StoreID      int64              `json:"store_id"`
	BusinessDate string             `json:"business_date"`
	Rows         []CastEarningsView `json:"rows"`
	Totals       CastEarningsTotals `json:"totals"`
}

type DailyReport struct {
	StoreID          int64          `json:"store_id"`
	BusinessDate     string         `json:"business_date"`
	TotalSales       int64          `json:"total_sales"`
	CardSales        int64          `json:"card_sales"`
	TotalGroups      int            `json:"total_groups"`
	CancelledGroups  int            `json:"cancelled_groups"`
	OpenGroups       int            `json:"open_groups"`
	AvgPerCustomer   int64          `json:"avg_per_customer"`
	IsWeekendHoliday bool           `json:"is_weekend_holiday"`
	BonusThreshold   int64          `json:"bonus_threshold"`
	BonusTier        int            `json:"bonus_tier"`
	BonusPerPoint    int64          `json:"bonus_per_point"`
	HourlyEntries    map[string]int `json:"hourly_entries"`
}

type ExtensionRecord struct {
	OrderID     string               `json:"order_id"`
	ProductName string               `json:"product_name"`
	Minutes     int                  `json:"minutes"`
	Tier        domain.ExtensionTier `json:"tier,omitempty"`
	CastID      string               `json:"cast_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	IsCancelled bool                 `json:"is_cancelled"`
}

type SessionLogEntry struct {
	Bill             domain.Bill       `json:"bill"`
	TableLabel       string            `json:"table_label"`
	BaseCharge       int64             `json:"base_charge"`
	Extensions       []ExtensionRecord `json:"extensions"`
	ExtensionMinutes int               `json:"extension_minutes"`
	OrdersCount      int               `json:"orders_count"`
	CancelledOrders  int               `json:"cancelled_orders"`
	AdjustmentTotal  int64             `json:"adjustment_total"`
	Total            int64             `json:"total"`
	CancelReason     string            `json:"cancel_reason,omitempty"`
}
