package engine

import (
	"time"

	"barledger/backend/internal/domain"
)

const (
	// ExtensionPreviewWindow is the remaining-minutes mark at which the extension preview is offered.
	ExtensionPreviewWindow = 5
	// DesignationThreshold is the extension count at which a (bill, cast) pair becomes designated.
	DesignationThreshold = 3
)

var baseMinuteMenu = []int{40, 60, 90}

type BillState struct {
	StartTime               time.Time            `json:"start_time"`
	BaseMinutes             int                  `json:"base_minutes"`
	ExtensionMinutesAccrued int                  `json:"extension_minutes_accrued"`
	SeatingTier             domain.SeatingTier   `json:"seating_tier"`
	PaymentMethod           domain.PaymentMethod `json:"payment_method,omitempty"`
}

func (b BillState) TotalMinutes() int {
	return b.BaseMinutes + b.ExtensionMinutesAccrued
}

func ValidateBaseMinutes(minutes int) error {
	for _, allowed := range baseMinuteMenu {
		if minutes == allowed {
			return nil
		}
	}
	return invalidInput("base_minutes", "must be one of 40, 60, 90")
}

// ElapsedMinutes floors the span between start and now to whole minutes.
func ElapsedMinutes(now time.Time, start time.Time) int {
	span := now.Sub(start)
	minutes := span / time.Minute
	if span < 0 && span%time.Minute != 0 {
		minutes--
	}
	return int(minutes)
}

// RemainingMinutes is signed; a negative result means the table is overdue.
func RemainingMinutes(totalAllotted int, elapsed int) int {
	return totalAllotted - elapsed
}

func ShowExtensionPreview(remaining int) bool {
	return remaining <= ExtensionPreviewWindow
}

// AccruedExtensionMinutes sums the minutes bought by non-cancelled extension lines.
func AccruedExtensionMinutes(lines []OrderLine) int {
	total := 0
	for _, line := range lines {
		if line.IsCancelled || line.Category != domain.CategoryExtension {
			continue
		}
		total += line.ExtensionMinutes * line.Quantity
	}
	return total
}

type DesignationState struct {
	ExtensionCount int  `json:"extension_count"`
	IsDesignated   bool `json:"is_designated"`
}

type UpgradeDecision struct {
	MarkDesignated bool               `json:"mark_designated"`
	UpgradeBill    bool               `json:"upgrade_bill"`
	SeatingTier    domain.SeatingTier `json:"seating_tier"`
}

// EvaluateUpgrade decides what a (bill, cast) pair's designation state implies
// for the pair and the bill. It is safe to re-run on already-upgraded state:
// nothing is requested that has already been applied.
func EvaluateUpgrade(state DesignationState, tier domain.SeatingTier) UpgradeDecision {
	decision := UpgradeDecision{SeatingTier: tier}
	if state.ExtensionCount < DesignationThreshold {
		return decision
	}
	decision.MarkDesignated = !state.IsDesignated
	if tier == domain.SeatingFree {
		decision.UpgradeBill = true
		decision.SeatingTier = domain.SeatingDesignated
	}
	return decision
}

type BillTotalView struct {
	CurrentTotal          int64 `json:"current_total"`
	DisplayTotal          int64 `json:"display_total"`
	CardSurchargeApplied  bool  `json:"card_surcharge_applied"`
	ElapsedMinutes        int   `json:"elapsed_minutes"`
	TotalMinutes          int   `json:"total_minutes"`
	RemainingMinutes      int   `json:"remaining_minutes"`
	ShowExtensionPreview  bool  `json:"show_extension_preview"`
	ExtensionPreviewTotal int64 `json:"extension_preview_total"`
}

// BuildBillView derives the running figures shown for a bill at instant now.
// extensionPrice is the price used for the extension preview; zero disables it.
func BuildBillView(state BillState, lines []OrderLine, adjustments []int64, extensionPrice int64, now time.Time) (BillTotalView, error) {
	if state.StartTime.IsZero() {
		return BillTotalView{}, invalidInput("start_time", "is required")
	}
	if extensionPrice < 0 {
		return BillTotalView{}, invalidInput("extension_price", "must not be negative")
	}

	total, err := BillTotal(lines, adjustments)
	if err != nil {
		return BillTotalView{}, err
	}

	elapsed := ElapsedMinutes(now, state.StartTime)
	remaining := RemainingMinutes(state.TotalMinutes(), elapsed)
	view := BillTotalView{
		CurrentTotal:         total,
		DisplayTotal:         CardSurcharge(total, state.PaymentMethod),
		CardSurchargeApplied: HasCardSurcharge(state.PaymentMethod),
		ElapsedMinutes:       elapsed,
		TotalMinutes:         state.TotalMinutes(),
		RemainingMinutes:     remaining,
		ShowExtensionPreview: ShowExtensionPreview(remaining),
	}
	if extensionPrice > 0 {
		view.ExtensionPreviewTotal = ExtensionPreview(PreTaxBase(total), extensionPrice)
	}
	return view, nil
}
