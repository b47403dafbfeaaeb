package engine

import "github.com/shopspring/decimal"

// S-unit weights per drink size.
const (
	UnitsSmall  = 1
	UnitsMedium = 2
	UnitsLarge  = 3
	UnitsShot   = 2
)

const sUnitsPerPoint = 5

func DrinkPoints(totalSUnits int) (int, error) {
	if totalSUnits < 0 {
		return 0, invalidInput("s_units", "must not be negative")
	}
	return totalSUnits / sUnitsPerPoint, nil
}

// ChampagneShare splits one bottle's points across the cast assigned to the
// bill, rounded to one decimal per order. With no consumers the full points
// go to the attributed cast member. Bottle points are never negative, so
// Round's half-away-from-zero matches half-up here.
func ChampagneShare(bottlePoints int64, consumers int) decimal.Decimal {
	if bottlePoints <= 0 {
		return decimal.Zero
	}
	points := decimal.NewFromInt(bottlePoints)
	if consumers <= 0 {
		return points
	}
	return points.Div(decimal.NewFromInt(int64(consumers))).Round(1)
}

func SumShares(shares []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, share := range shares {
		sum = sum.Add(share)
	}
	return sum
}

// ChampagnePoints floors the day's accumulated shares.
func ChampagnePoints(shares []decimal.Decimal) int64 {
	return SumShares(shares).Floor().IntPart()
}

func TotalPoints(drinkPoints int, champagnePoints int64) int64 {
	return int64(drinkPoints) + champagnePoints
}
