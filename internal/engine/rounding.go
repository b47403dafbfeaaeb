package engine

import "github.com/shopspring/decimal"

// FloorToNearest10 rounds a yen amount down to a multiple of 10.
func FloorToNearest10(amount decimal.Decimal) int64 {
	return amount.Shift(-1).Floor().Shift(1).IntPart()
}

// CeilToNearest100 rounds a yen amount up to a multiple of 100.
func CeilToNearest100(amount decimal.Decimal) int64 {
	return amount.Shift(-2).Ceil().Shift(2).IntPart()
}

func yen(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount)
}
