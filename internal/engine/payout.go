package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"barledger/backend/internal/domain"
)

var minutesPerHour = decimal.NewFromInt(60)

type ShiftRecord struct {
	ClockIn         time.Time             `json:"clock_in"`
	ClockOut        *time.Time            `json:"clock_out,omitempty"`
	IsLatePickup    bool                  `json:"is_late_pickup"`
	LatePickupStart *time.Time            `json:"late_pickup_start,omitempty"`
	ClockInStatus   domain.ApprovalStatus `json:"clock_in_status"`
}

type ShiftPay struct {
	Open              bool  `json:"open"`
	WorkMinutes       int   `json:"work_minutes"`
	LatePickupMinutes int   `json:"late_pickup_minutes"`
	BaseHourly        int64 `json:"base_hourly"`
	EffectiveHourly   int64 `json:"effective_hourly"`
	TimePay           int64 `json:"time_pay"`
}

// ShiftTimePay prices one shift. An open shift is priced up to now. With late
// pickup the minutes from the pickup start onward earn the pickup bonus on top
// of the hourly rate.
func ShiftTimePay(shift ShiftRecord, hourlyRate int64, latePickupBonus int64, now time.Time) (ShiftPay, error) {
	if shift.ClockIn.IsZero() {
		return ShiftPay{}, invalidInput("clock_in", "is required")
	}
	if hourlyRate < 0 {
		return ShiftPay{}, invalidInput("hourly_rate", "must not be negative")
	}
	if latePickupBonus < 0 {
		return ShiftPay{}, invalidInput("late_pickup_bonus", "must not be negative")
	}

	end := now
	open := shift.ClockOut == nil
	if !open {
		end = *shift.ClockOut
		if end.Before(shift.ClockIn) {
			return ShiftPay{}, ErrClockOutBeforeClockIn
		}
	}
	if end.Before(shift.ClockIn) {
		end = shift.ClockIn
	}

	rate := yen(hourlyRate)
	workMinutes := ElapsedMinutes(end, shift.ClockIn)
	result := ShiftPay{Open: open, WorkMinutes: workMinutes, BaseHourly: hourlyRate, EffectiveHourly: hourlyRate}

	var pay decimal.Decimal
	if shift.IsLatePickup && shift.LatePickupStart != nil {
		pickup := clampTime(*shift.LatePickupStart, shift.ClockIn, end)
		before := ElapsedMinutes(pickup, shift.ClockIn)
		after := ElapsedMinutes(end, pickup)
		pay = rate.Mul(decimal.NewFromInt(int64(before))).
			Add(rate.Add(yen(latePickupBonus)).Mul(decimal.NewFromInt(int64(after)))).
			Div(minutesPerHour)
		result.LatePickupMinutes = after
	} else {
		pay = rate.Mul(decimal.NewFromInt(int64(workMinutes))).Div(minutesPerHour)
	}

	result.TimePay = pay.Floor().IntPart()
	if workMinutes > 0 {
		result.EffectiveHourly = pay.Mul(minutesPerHour).Div(decimal.NewFromInt(int64(workMinutes))).Floor().IntPart()
	}
	return result, nil
}

type PayoutInput struct {
	TimePay        int64 `json:"time_pay"`
	Backs          int64 `json:"backs"`
	Bonus          int64 `json:"bonus"`
	WelfareFee     int64 `json:"welfare_fee"`
	TransportFee   int64 `json:"transport_fee"`
	TaxRatePercent int64 `json:"tax_rate"`
}

type Payout struct {
	Subtotal     int64 `json:"subtotal"`
	AfterTax     int64 `json:"after_tax"`
	TaxDeduction int64 `json:"tax_deduction"`
	Net          int64 `json:"net"`
}

// NetPayout applies the flat withholding multiplier and fixed deductions.
// Subtotal, after-tax and deduction figures are floored for display only; the
// net amount is rounded down to 10 yen from the exact after-tax value.
func NetPayout(in PayoutInput) Payout {
	subtotal := in.TimePay + in.Backs + in.Bonus
	afterTax := yen(subtotal).Mul(yen(in.TaxRatePercent)).Shift(-2)
	deduction := yen(subtotal).Sub(afterTax)

	net := FloorToNearest10(afterTax.Sub(yen(in.WelfareFee)).Sub(yen(in.TransportFee)))
	if net < 0 {
		net = 0
	}
	return Payout{
		Subtotal:     subtotal,
		AfterTax:     afterTax.Floor().IntPart(),
		TaxDeduction: deduction.Floor().IntPart(),
		Net:          net,
	}
}

// ReferralBonus is paid on top of the net payout, never inside it.
func ReferralBonus(referralCount int, amount int64) int64 {
	if referralCount <= 0 {
		return 0
	}
	return int64(referralCount) * amount
}

func clampTime(t time.Time, lo time.Time, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}
