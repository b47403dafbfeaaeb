package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"barledger/backend/internal/domain"
)

// EarnedOrder is one non-cancelled order attributed to the cast member.
// Amounts are per unit as captured on the order.
type EarnedOrder struct {
	StoreID      int64                  `json:"store_id"`
	Category     domain.ProductCategory `json:"category"`
	Quantity     int                    `json:"quantity"`
	BackAmount   int64                  `json:"back_amount"`
	PointsAmount int64                  `json:"points_amount"`
	DrinkUnits   int                    `json:"drink_units"`
	// Consumers is the number of cast actively assigned to the bill; only bottles use it.
	Consumers int `json:"consumers"`
}

type EarningsInput struct {
	Shifts           []ShiftRecord `json:"shifts"`
	Orders           []EarnedOrder `json:"orders"`
	StoreSales       []StoreSales  `json:"store_sales"`
	HourlyRate       int64         `json:"hourly_rate"`
	TransportFee     int64         `json:"transport_fee"`
	WeekendOrHoliday bool          `json:"weekend_or_holiday"`
	ReferralCount    int           `json:"referral_count"`
	Now              time.Time     `json:"now"`
}

type CastEarningsBreakdown struct {
	Shifts          []ShiftPay                       `json:"shifts"`
	WorkMinutes     int                              `json:"work_minutes"`
	TotalTimePay    int64                            `json:"total_time_pay"`
	HasLatePickup   bool                             `json:"has_late_pickup"`
	BacksByCategory map[domain.ProductCategory]int64 `json:"backs_by_category"`
	TotalBacks      int64                            `json:"total_backs"`
	OrdersCount     int                              `json:"orders_count"`
	DrinkSUnits     int                              `json:"drink_s_units"`
	DrinkPoints     int                              `json:"drink_points"`
	ChampagneShares []decimal.Decimal                `json:"champagne_shares"`
	ChampagneTotal  decimal.Decimal                  `json:"champagne_total"`
	ChampagnePoints int64                            `json:"champagne_points"`
	TotalPoints     int64                            `json:"total_points"`
	BonusQualified  bool                             `json:"bonus_qualified"`
	BonusPerPoint   int64                            `json:"bonus_per_point"`
	BonusAmount     int64                            `json:"bonus_amount"`
	StoreBonuses    []StoreBonus                     `json:"store_bonuses"`
	Subtotal        int64                            `json:"subtotal"`
	TaxRatePercent  int64                            `json:"tax_rate"`
	AfterTax        int64                            `json:"after_tax"`
	TaxDeduction    int64                            `json:"tax_deduction"`
	WelfareFee      int64                            `json:"welfare_fee"`
	TransportFee    int64                            `json:"transport_fee"`
	NetPayout       int64                            `json:"net_payout"`
	ReferralCount   int                              `json:"referral_count"`
	ReferralBonus   int64                            `json:"referral_bonus"`
}

// CalculateEarnings assembles a cast member's daily payroll. Only shifts whose
// clock-in was approved are paid. The function either returns a complete
// breakdown or an error; it never returns partial figures.
func CalculateEarnings(in EarningsInput, settings Settings) (CastEarningsBreakdown, error) {
	if err := settings.Validate(); err != nil {
		return CastEarningsBreakdown{}, err
	}
	if in.TransportFee < 0 {
		return CastEarningsBreakdown{}, invalidInput("transport_fee", "must not be negative")
	}

	out := CastEarningsBreakdown{
		Shifts:          make([]ShiftPay, 0, len(in.Shifts)),
		BacksByCategory: make(map[domain.ProductCategory]int64),
		ChampagneShares: make([]decimal.Decimal, 0),
		TaxRatePercent:  settings.TaxRatePercent,
		WelfareFee:      settings.WelfareFee,
		TransportFee:    in.TransportFee,
	}

	for i, shift := range in.Shifts {
		if shift.ClockInStatus != domain.ApprovalApproved {
			continue
		}
		pay, err := ShiftTimePay(shift, in.HourlyRate, settings.LatePickupBonus, in.Now)
		if err != nil {
			return CastEarningsBreakdown{}, fmt.Errorf("shift %d: %w", i, err)
		}
		out.Shifts = append(out.Shifts, pay)
		out.WorkMinutes += pay.WorkMinutes
		out.TotalTimePay += pay.TimePay
		if shift.IsLatePickup {
			out.HasLatePickup = true
		}
	}

	for i, order := range in.Orders {
		if order.Quantity < 0 {
			return CastEarningsBreakdown{}, fmt.Errorf("order %d: %w", i, invalidInput("quantity", "must not be negative"))
		}
		qty := int64(order.Quantity)
		back := order.BackAmount * qty
		out.BacksByCategory[order.Category] += back
		out.TotalBacks += back
		out.OrdersCount++

		switch order.Category {
		case domain.CategoryDrinks:
			out.DrinkSUnits += order.DrinkUnits * order.Quantity
		case domain.CategoryBottles:
			if order.PointsAmount > 0 {
				out.ChampagneShares = append(out.ChampagneShares, ChampagneShare(order.PointsAmount*qty, order.Consumers))
			}
		}
	}

	drinkPoints, err := DrinkPoints(out.DrinkSUnits)
	if err != nil {
		return CastEarningsBreakdown{}, err
	}
	out.DrinkPoints = drinkPoints
	out.ChampagneTotal = SumShares(out.ChampagneShares)
	out.ChampagnePoints = ChampagnePoints(out.ChampagneShares)
	out.TotalPoints = TotalPoints(drinkPoints, out.ChampagnePoints)

	bonus := CrossStoreBonus(in.StoreSales, out.TotalPoints, in.WeekendOrHoliday, settings)
	out.BonusQualified = bonus.Qualified
	out.BonusPerPoint = bonus.BestBonusPerPoint
	out.BonusAmount = bonus.TotalBonus
	out.StoreBonuses = bonus.Stores

	payout := NetPayout(PayoutInput{
		TimePay:        out.TotalTimePay,
		Backs:          out.TotalBacks,
		Bonus:          out.BonusAmount,
		WelfareFee:     settings.WelfareFee,
		TransportFee:   in.TransportFee,
		TaxRatePercent: settings.TaxRatePercent,
	})
	out.Subtotal = payout.Subtotal
	out.AfterTax = payout.AfterTax
	out.TaxDeduction = payout.TaxDeduction
	out.NetPayout = payout.Net

	out.ReferralCount = in.ReferralCount
	out.ReferralBonus = ReferralBonus(in.ReferralCount, settings.ReferralBonus)
	return out, nil
}
