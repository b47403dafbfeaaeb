package engine

type BonusResult struct {
	Qualified     bool  `json:"qualified"`
	Threshold     int64 `json:"threshold"`
	Tier          int64 `json:"tier"`
	BonusPerPoint int64 `json:"bonus_per_point"`
	TotalBonus    int64 `json:"total_bonus"`
}

func BonusThreshold(weekendOrHoliday bool, settings Settings) int64 {
	if weekendOrHoliday {
		return settings.BonusThresholdWeekend
	}
	return settings.BonusThresholdWeekday
}

// DailyBonus evaluates the store sales threshold bonus for one store.
func DailyBonus(storeSales int64, castPoints int64, weekendOrHoliday bool, settings Settings) BonusResult {
	threshold := BonusThreshold(weekendOrHoliday, settings)
	result := BonusResult{Threshold: threshold}
	if storeSales < threshold {
		return result
	}

	var tier int64
	if settings.BonusIncrement > 0 {
		tier = (storeSales - threshold) / settings.BonusIncrement
	}
	perPoint := min(settings.BonusBasePerPoint+tier*settings.BonusBasePerPoint, settings.BonusMaxPerPoint)

	result.Qualified = true
	result.Tier = tier
	result.BonusPerPoint = perPoint
	result.TotalBonus = castPoints * perPoint
	return result
}

// ReportBonusTier is the 1-based tier shown on daily report snapshots, 0 when
// the store missed the threshold.
func ReportBonusTier(storeSales int64, weekendOrHoliday bool, settings Settings) int {
	result := DailyBonus(storeSales, 0, weekendOrHoliday, settings)
	if !result.Qualified {
		return 0
	}
	return int(result.Tier) + 1
}

type StoreSales struct {
	StoreID int64 `json:"store_id"`
	Sales   int64 `json:"sales"`
}

type StoreBonus struct {
	StoreID int64 `json:"store_id"`
	Sales   int64 `json:"sales"`
	BonusResult
}

type CrossStoreResult struct {
	Qualified         bool         `json:"qualified"`
	BestBonusPerPoint int64        `json:"best_bonus_per_point"`
	TotalBonus        int64        `json:"total_bonus"`
	Stores            []StoreBonus `json:"stores"`
}

// CrossStoreBonus evaluates every store the cast member worked that day with
// their full point total. The best per-point rate is reported, while the
// bonus amount is the sum over every store that qualified.
func CrossStoreBonus(sales []StoreSales, castPoints int64, weekendOrHoliday bool, settings Settings) CrossStoreResult {
	result := CrossStoreResult{Stores: make([]StoreBonus, 0, len(sales))}
	for _, store := range sales {
		bonus := DailyBonus(store.Sales, castPoints, weekendOrHoliday, settings)
		result.Stores = append(result.Stores, StoreBonus{StoreID: store.StoreID, Sales: store.Sales, BonusResult: bonus})
		if !bonus.Qualified {
			continue
		}
		result.Qualified = true
		result.TotalBonus += bonus.TotalBonus
		if bonus.BonusPerPoint > result.BestBonusPerPoint {
			result.BestBonusPerPoint = bonus.BonusPerPoint
		}
	}
	return result
}
