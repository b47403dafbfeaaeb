package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barledger/backend/internal/domain"
)

func TestDrinkPoints(t *testing.T) {
	points, err := DrinkPoints(23)
	require.NoError(t, err)
	assert.Equal(t, 4, points)

	points, err = DrinkPoints(4)
	require.NoError(t, err)
	assert.Zero(t, points)

	_, err = DrinkPoints(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChampagneShare(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.6").Equal(ChampagneShare(8, 5)))
	assert.True(t, decimal.RequireFromString("2.7").Equal(ChampagneShare(8, 3)))
	assert.True(t, decimal.RequireFromString("0.3").Equal(ChampagneShare(1, 4)))
	assert.True(t, decimal.NewFromInt(8).Equal(ChampagneShare(8, 0)), "no consumers keeps the full points")
	assert.True(t, decimal.NewFromInt(8).Equal(ChampagneShare(8, -2)))
	assert.True(t, decimal.Zero.Equal(ChampagneShare(-1, 2)), "negative points never produce a share")
	assert.True(t, decimal.Zero.Equal(ChampagneShare(0, 3)))
}

func TestChampagnePointsFloorsSumOfRoundedShares(t *testing.T) {
	shares := []decimal.Decimal{ChampagneShare(4, 1), ChampagneShare(8, 5)}
	assert.True(t, decimal.RequireFromString("5.6").Equal(SumShares(shares)))
	assert.Equal(t, int64(5), ChampagnePoints(shares))

	// Four quarter-point shares round up to 0.3 each before summing.
	quarters := []decimal.Decimal{ChampagneShare(1, 4), ChampagneShare(1, 4), ChampagneShare(1, 4), ChampagneShare(1, 4)}
	assert.Equal(t, int64(1), ChampagnePoints(quarters))

	tenths := make([]decimal.Decimal, 10)
	for i := range tenths {
		tenths[i] = decimal.RequireFromString("0.1")
	}
	assert.Equal(t, int64(1), ChampagnePoints(tenths))
	assert.Equal(t, int64(9), TotalPoints(4, 5))
}

func TestDailyBonus(t *testing.T) {
	settings := DefaultSettings()

	res := DailyBonus(400000, 10, false, settings)
	assert.True(t, res.Qualified)
	assert.Equal(t, int64(200), res.BonusPerPoint)
	assert.Equal(t, int64(2000), res.TotalBonus)

	res = DailyBonus(850000, 10, false, settings)
	assert.Equal(t, int64(1), res.Tier)
	assert.Equal(t, int64(400), res.BonusPerPoint)

	res = DailyBonus(2000000, 10, false, settings)
	assert.Equal(t, int64(600), res.BonusPerPoint, "capped at the max per point")

	res = DailyBonus(399999, 10, false, settings)
	assert.False(t, res.Qualified)
	assert.Zero(t, res.TotalBonus)

	res = DailyBonus(450000, 10, true, settings)
	assert.False(t, res.Qualified, "weekend threshold applies")
	assert.Equal(t, int64(500000), res.Threshold)
}

func TestReportBonusTier(t *testing.T) {
	settings := DefaultSettings()
	assert.Equal(t, 0, ReportBonusTier(399999, false, settings))
	assert.Equal(t, 1, ReportBonusTier(400000, false, settings))
	assert.Equal(t, 2, ReportBonusTier(850000, false, settings))
}

func TestCrossStoreBonusSumsQualifiedStores(t *testing.T) {
	res := CrossStoreBonus([]StoreSales{
		{StoreID: 1, Sales: 850000},
		{StoreID: 2, Sales: 450000},
		{StoreID: 3, Sales: 100000},
	}, 10, false, DefaultSettings())

	assert.True(t, res.Qualified)
	assert.Equal(t, int64(400), res.BestBonusPerPoint)
	assert.Equal(t, int64(6000), res.TotalBonus)
	require.Len(t, res.Stores, 3)
	assert.False(t, res.Stores[2].Qualified)
}

func TestShiftTimePay(t *testing.T) {
	in := time.Date(2026, 3, 6, 20, 0, 0, 0, JST)
	out := in.Add(392 * time.Minute)

	pay, err := ShiftTimePay(ShiftRecord{ClockIn: in, ClockOut: &out, ClockInStatus: domain.ApprovalApproved}, 4000, 500, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 392, pay.WorkMinutes)
	assert.Equal(t, int64(26133), pay.TimePay)
	assert.Equal(t, int64(4000), pay.EffectiveHourly)
	assert.False(t, pay.Open)
}

func TestShiftTimePayWithLatePickup(t *testing.T) {
	in := time.Date(2026, 3, 6, 20, 0, 0, 0, JST)
	pickup := in.Add(4 * time.Hour)
	out := in.Add(6 * time.Hour)

	pay, err := ShiftTimePay(ShiftRecord{ClockIn: in, ClockOut: &out, IsLatePickup: true, LatePickupStart: &pickup}, 4000, 500, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 360, pay.WorkMinutes)
	assert.Equal(t, 120, pay.LatePickupMinutes)
	assert.Equal(t, int64(25000), pay.TimePay)
	assert.Equal(t, int64(4166), pay.EffectiveHourly)
}

func TestShiftTimePayOpenShiftUsesNow(t *testing.T) {
	in := time.Date(2026, 3, 6, 20, 0, 0, 0, JST)
	pay, err := ShiftTimePay(ShiftRecord{ClockIn: in}, 3000, 500, in.Add(90*time.Minute+40*time.Second))
	require.NoError(t, err)
	assert.True(t, pay.Open)
	assert.Equal(t, 90, pay.WorkMinutes)
	assert.Equal(t, int64(4500), pay.TimePay)
}

func TestShiftTimePayRejectsClockOutBeforeClockIn(t *testing.T) {
	in := time.Date(2026, 3, 6, 20, 0, 0, 0, JST)
	out := in.Add(-time.Minute)
	_, err := ShiftTimePay(ShiftRecord{ClockIn: in, ClockOut: &out}, 4000, 500, time.Time{})
	assert.ErrorIs(t, err, ErrClockOutBeforeClockIn)
}

func TestNetPayoutReferenceExample(t *testing.T) {
	payout := NetPayout(PayoutInput{
		TimePay:        26133,
		Backs:          7500,
		WelfareFee:     1000,
		TaxRatePercent: 90,
	})
	assert.Equal(t, int64(33633), payout.Subtotal)
	assert.Equal(t, int64(30269), payout.AfterTax)
	assert.Equal(t, int64(3363), payout.TaxDeduction)
	assert.Equal(t, int64(29260), payout.Net)
}

func TestNetPayoutClampsAtZero(t *testing.T) {
	payout := NetPayout(PayoutInput{TimePay: 500, WelfareFee: 1000, TransportFee: 800, TaxRatePercent: 90})
	assert.Zero(t, payout.Net)
}

func TestReferralBonus(t *testing.T) {
	assert.Equal(t, int64(4000), ReferralBonus(2, 2000))
	assert.Zero(t, ReferralBonus(0, 2000))
}

func TestCalculateEarnings(t *testing.T) {
	in := time.Date(2026, 3, 6, 20, 0, 0, 0, JST)
	out := in.Add(392 * time.Minute)
	pendingIn := in.Add(-3 * time.Hour)
	pendingOut := in.Add(-time.Hour)

	breakdown, err := CalculateEarnings(EarningsInput{
		Shifts: []ShiftRecord{
			{ClockIn: in, ClockOut: &out, ClockInStatus: domain.ApprovalApproved},
			{ClockIn: pendingIn, ClockOut: &pendingOut, ClockInStatus: domain.ApprovalPending},
		},
		Orders: []EarnedOrder{
			{StoreID: 1, Category: domain.CategoryDrinks, Quantity: 5, BackAmount: 500, DrinkUnits: 3},
			{StoreID: 1, Category: domain.CategoryDrinks, Quantity: 4, BackAmount: 300, DrinkUnits: 2},
			{StoreID: 1, Category: domain.CategoryBottles, Quantity: 1, BackAmount: 2000, PointsAmount: 4, Consumers: 1},
			{StoreID: 2, Category: domain.CategoryBottles, Quantity: 1, BackAmount: 1800, PointsAmount: 8, Consumers: 5},
		},
		StoreSales:    []StoreSales{{StoreID: 1, Sales: 850000}, {StoreID: 2, Sales: 300000}},
		HourlyRate:    4000,
		TransportFee:  500,
		ReferralCount: 2,
		Now:           out,
	}, DefaultSettings())
	require.NoError(t, err)

	assert.Len(t, breakdown.Shifts, 1)
	assert.Equal(t, int64(26133), breakdown.TotalTimePay)
	assert.Equal(t, int64(7500), breakdown.TotalBacks)
	assert.Equal(t, int64(3800), breakdown.BacksByCategory[domain.CategoryBottles])
	assert.Equal(t, 23, breakdown.DrinkSUnits)
	assert.Equal(t, 4, breakdown.DrinkPoints)
	assert.Equal(t, int64(5), breakdown.ChampagnePoints)
	assert.True(t, decimal.RequireFromString("5.6").Equal(breakdown.ChampagneTotal))
	assert.Equal(t, int64(9), breakdown.TotalPoints)
	assert.True(t, breakdown.BonusQualified)
	assert.Equal(t, int64(400), breakdown.BonusPerPoint)
	assert.Equal(t, int64(3600), breakdown.BonusAmount)
	assert.Equal(t, int64(37233), breakdown.Subtotal)
	assert.Equal(t, int64(33509), breakdown.AfterTax)
	assert.Equal(t, int64(3723), breakdown.TaxDeduction)
	assert.Equal(t, int64(32000), breakdown.NetPayout)
	assert.Equal(t, int64(4000), breakdown.ReferralBonus)
}

func TestCalculateEarningsRejectsInvalidSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.BonusIncrement = 0
	_, err := CalculateEarnings(EarningsInput{}, settings)
	assert.ErrorIs(t, err, ErrInvalidSetting)
}
