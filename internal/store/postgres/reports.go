package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/store"
)

func (s *Store) ListSettings(ctx context.Context) ([]domain.StoreSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, COALESCE(updated_by, ''), updated_at
		FROM store_settings
		ORDER BY key ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]domain.StoreSetting, 0, 16)
	for rows.Next() {
		var setting domain.StoreSetting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.UpdatedBy, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		setting.UpdatedAt = setting.UpdatedAt.UTC()
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

func (s *Store) UpsertSetting(ctx context.Context, setting domain.StoreSetting) (*domain.StoreSetting, error) {
	if setting.Key == "" {
		return nil, store.ErrInvalidInput
	}
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_settings (key, value, updated_by, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, setting.Key, setting.Value, nullIfEmpty(setting.UpdatedBy), setting.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := setting
	return &saved, nil
}

func (s *Store) UpsertDailyReport(ctx context.Context, snapshot domain.DailyReportSnapshot) (*domain.DailyReportSnapshot, error) {
	if snapshot.StoreID < 1 {
		return nil, store.ErrInvalidInput
	}
	day, err := parseBusinessDate(snapshot.BusinessDate)
	if err != nil {
		return nil, err
	}
	if snapshot.HourlyEntries == nil {
		snapshot.HourlyEntries = map[string]int{}
	}
	hourly, err := json.Marshal(snapshot.HourlyEntries)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_reports (
			store_id, business_date, total_sales, card_sales, total_groups, avg_per_customer,
			is_weekend_holiday, bonus_tier, bonus_per_point, hourly_entries, saved_by, saved_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12)
		ON CONFLICT (store_id, business_date)
		DO UPDATE SET
			total_sales = EXCLUDED.total_sales,
			card_sales = EXCLUDED.card_sales,
			total_groups = EXCLUDED.total_groups,
			avg_per_customer = EXCLUDED.avg_per_customer,
			is_weekend_holiday = EXCLUDED.is_weekend_holiday,
			bonus_tier = EXCLUDED.bonus_tier,
			bonus_per_point = EXCLUDED.bonus_per_point,
			hourly_entries = EXCLUDED.hourly_entries,
			saved_by = EXCLUDED.saved_by,
			saved_at = EXCLUDED.saved_at
	`, snapshot.StoreID, day, snapshot.TotalSales, snapshot.CardSales, snapshot.TotalGroups, snapshot.AvgPerCustomer,
		snapshot.IsWeekendHoliday, snapshot.BonusTier, snapshot.BonusPerPoint, string(hourly), snapshot.SavedBy, snapshot.SavedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	saved := snapshot
	return &saved, nil
}

func (s *Store) GetDailyReportSnapshot(ctx context.Context, storeID int64, businessDate string) (*domain.DailyReportSnapshot, error) {
	day, err := parseBusinessDate(businessDate)
	if err != nil {
		return nil, err
	}

	var (
		snapshot domain.DailyReportSnapshot
		date     time.Time
		hourly   []byte
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT store_id, business_date, total_sales, card_sales, total_groups, avg_per_customer,
			is_weekend_holiday, bonus_tier, bonus_per_point, hourly_entries, saved_by, saved_at
		FROM daily_reports
		WHERE store_id = $1 AND business_date = $2
	`, storeID, day).Scan(&snapshot.StoreID, &date, &snapshot.TotalSales, &snapshot.CardSales, &snapshot.TotalGroups,
		&snapshot.AvgPerCustomer, &snapshot.IsWeekendHoliday, &snapshot.BonusTier, &snapshot.BonusPerPoint, &hourly,
		&snapshot.SavedBy, &snapshot.SavedAt)
	if err != nil {
		return nil, notFound(err)
	}
	snapshot.BusinessDate = date.Format(businessDateLayout)
	snapshot.SavedAt = snapshot.SavedAt.UTC()
	snapshot.HourlyEntries = map[string]int{}
	if len(hourly) > 0 {
		if err := json.Unmarshal(hourly, &snapshot.HourlyEntries); err != nil {
			return nil, err
		}
	}
	return &snapshot, nil
}

func (s *Store) UpsertCastDailyEarnings(ctx context.Context, rows []domain.CastDailyEarnings) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		if row.CastID == "" {
			return store.ErrInvalidInput
		}
		day, err := parseBusinessDate(row.BusinessDate)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cast_daily_earnings (
				cast_id, business_date, work_minutes, time_pay, backs, total_points, bonus_amount, subtotal,
				after_tax, welfare_fee, transport_fee, net_payout, referral_bonus, saved_by, saved_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (cast_id, business_date)
			DO UPDATE SET
				work_minutes = EXCLUDED.work_minutes,
				time_pay = EXCLUDED.time_pay,
				backs = EXCLUDED.backs,
				total_points = EXCLUDED.total_points,
				bonus_amount = EXCLUDED.bonus_amount,
				subtotal = EXCLUDED.subtotal,
				after_tax = EXCLUDED.after_tax,
				welfare_fee = EXCLUDED.welfare_fee,
				transport_fee = EXCLUDED.transport_fee,
				net_payout = EXCLUDED.net_payout,
				referral_bonus = EXCLUDED.referral_bonus,
				saved_by = EXCLUDED.saved_by,
				saved_at = EXCLUDED.saved_at
		`, row.CastID, day, row.WorkMinutes, row.TimePay, row.Backs, row.TotalPoints, row.BonusAmount, row.Subtotal,
			row.AfterTax, row.WelfareFee, row.TransportFee, row.NetPayout, row.ReferralBonus, row.SavedBy, row.SavedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListCastDailyEarnings(ctx context.Context, businessDate string) ([]domain.CastDailyEarnings, error) {
	day, err := parseBusinessDate(businessDate)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cast_id, business_date, work_minutes, time_pay, backs, total_points, bonus_amount, subtotal,
			after_tax, welfare_fee, transport_fee, net_payout, referral_bonus, saved_by, saved_at
		FROM cast_daily_earnings
		WHERE business_date = $1
		ORDER BY cast_id ASC
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CastDailyEarnings, 0, 8)
	for rows.Next() {
		var (
			row  domain.CastDailyEarnings
			date time.Time
		)
		if err := rows.Scan(&row.CastID, &date, &row.WorkMinutes, &row.TimePay, &row.Backs, &row.TotalPoints, &row.BonusAmount,
			&row.Subtotal, &row.AfterTax, &row.WelfareFee, &row.TransportFee, &row.NetPayout, &row.ReferralBonus,
			&row.SavedBy, &row.SavedAt); err != nil {
			return nil, err
		}
		row.BusinessDate = date.Format(businessDateLayout)
		row.SavedAt = row.SavedAt.UTC()
		result = append(result, row)
	}
	return result, rows.Err()
}
