package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
)

// salesBook memoizes per-store sales while one request prices several cast members.
type salesBook struct {
	svc   *Service
	day   time.Time
	sales map[int64]int64
}

func (b *salesBook) get(ctx context.Context, storeID int64) (int64, error) {
	if total, ok := b.sales[storeID]; ok {
		return total, nil
	}
	figures, err := b.svc.storeSales(ctx, storeID, b.day)
	if err != nil {
		return 0, err
	}
	b.sales[storeID] = figures.totalSales
	return figures.totalSales, nil
}

// CastEarnings prices one cast member's business day across every store they
// worked. Cast callers may only read their own figures.
func (s *Service) CastEarnings(ctx context.Context, castID string, date string) (CastEarningsView, error) {
	actor, err := requireFloor(ctx)
	if err != nil {
		return CastEarningsView{}, err
	}
	castID = strings.TrimSpace(castID)
	if actor.Role == domain.RoleCast {
		if castID != "" && castID != actor.CastID {
			return CastEarningsView{}, fmt.Errorf("%w: cast may only read their own earnings", ErrForbidden)
		}
		castID = actor.CastID
	}
	day, err := s.businessDay(date)
	if err != nil {
		return CastEarningsView{}, err
	}
	member, err := s.repo.GetCastMember(ctx, castID)
	if err != nil {
		return CastEarningsView{}, err
	}
	settings, _, err := s.loadSettings(ctx)
	if err != nil {
		return CastEarningsView{}, err
	}
	members, err := s.repo.ListCastMembers(ctx, true)
	if err != nil {
		return CastEarningsView{}, err
	}

	book := &salesBook{svc: s, day: day, sales: make(map[int64]int64)}
	return s.castEarnings(ctx, *member, members, day, settings, book)
}

func (s *Service) castEarnings(ctx context.Context, member domain.CastMember, members []domain.CastMember, day time.Time, settings engine.Settings, book *salesBook) (CastEarningsView, error) {
	from, to := engine.BusinessDayRange(day)

	shifts, err := s.repo.ListShifts(ctx, domain.ShiftFilter{CastID: member.ID, From: from, To: to})
	if err != nil {
		return CastEarningsView{}, err
	}
	orders, err := s.repo.ListCastOrders(ctx, member.ID, from, to)
	if err != nil {
		return CastEarningsView{}, err
	}

	storeIDs := make([]int64, 0, 2)
	records := make([]engine.ShiftRecord, 0, len(shifts))
	for _, shift := range shifts {
		records = append(records, engine.ShiftRecord{
			ClockIn:         shift.ClockIn,
			ClockOut:        shift.ClockOut,
			IsLatePickup:    shift.IsLatePickup,
			LatePickupStart: shift.LatePickupStart,
			ClockInStatus:   shift.ClockInStatus,
		})
		if shift.ClockInStatus == domain.ApprovalApproved && !slices.Contains(storeIDs, shift.StoreID) {
			storeIDs = append(storeIDs, shift.StoreID)
		}
	}

	earned := make([]engine.EarnedOrder, 0, len(orders))
	for _, order := range orders {
		earned = append(earned, engine.EarnedOrder{
			StoreID:      order.StoreID,
			Category:     order.Category,
			Quantity:     order.Quantity,
			BackAmount:   order.BackAmount,
			PointsAmount: order.PointsAmount,
			DrinkUnits:   order.DrinkUnits,
			Consumers:    order.Consumers,
		})
		if !slices.Contains(storeIDs, order.StoreID) {
			storeIDs = append(storeIDs, order.StoreID)
		}
	}
	slices.Sort(storeIDs)

	storeSales := make([]engine.StoreSales, 0, len(storeIDs))
	for _, storeID := range storeIDs {
		total, err := book.get(ctx, storeID)
		if err != nil {
			return CastEarningsView{}, err
		}
		storeSales = append(storeSales, engine.StoreSales{StoreID: storeID, Sales: total})
	}

	referrals, err := s.referralCount(ctx, member.ID, members, from, to)
	if err != nil {
		return CastEarningsView{}, err
	}

	breakdown, err := engine.CalculateEarnings(engine.EarningsInput{
		Shifts:           records,
		Orders:           earned,
		StoreSales:       storeSales,
		HourlyRate:       member.HourlyRate,
		TransportFee:     member.TransportFee,
		WeekendOrHoliday: s.holidays.IsWeekendOrHoliday(day),
		ReferralCount:    referrals,
		Now:              s.clock(),
	}, settings)
	if err != nil {
		return CastEarningsView{}, fmt.Errorf("cast %s: %w", member.ID, err)
	}

	return CastEarningsView{
		CastID:                member.ID,
		CastName:              member.Name,
		BusinessDate:          engine.FormatBusinessDate(day),
		CastEarningsBreakdown: breakdown,
	}, nil
}

// referralCount is the number of members referred by castID who have an
// approved shift in the window.
func (s *Service) referralCount(ctx context.Context, castID string, members []domain.CastMember, from time.Time, to time.Time) (int, error) {
	count := 0
	for _, referred := range members {
		if referred.ReferredBy != castID {
			continue
		}
		shifts, err := s.repo.ListShifts(ctx, domain.ShiftFilter{CastID: referred.ID, From: from, To: to})
		if err != nil {
			return 0, err
		}
		for _, shift := range shifts {
			if shift.ClockInStatus == domain.ApprovalApproved {
				count++
				break
			}
		}
	}
	return count, nil
}

// DailyCastEarnings builds the payroll sheet for every cast member who clocked
// in at the store during the business day.
func (s *Service) DailyCastEarnings(ctx context.Context, storeID int64, date string) (CastEarningsSheet, error) {
	if _, err := requireStaff(ctx); err != nil {
		return CastEarningsSheet{}, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return CastEarningsSheet{}, err
	}
	return s.dailyCastEarnings(ctx, s.storeOrDefault(storeID), day)
}

func (s *Service) dailyCastEarnings(ctx context.Context, storeID int64, day time.Time) (CastEarningsSheet, error) {
	settings, _, err := s.loadSettings(ctx)
	if err != nil {
		return CastEarningsSheet{}, err
	}
	from, to := engine.BusinessDayRange(day)
	shifts, err := s.repo.ListShifts(ctx, domain.ShiftFilter{StoreID: storeID, From: from, To: to})
	if err != nil {
		return CastEarningsSheet{}, err
	}
	members, err := s.repo.ListCastMembers(ctx, true)
	if err != nil {
		return CastEarningsSheet{}, err
	}
	byID := make(map[string]domain.CastMember, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	sheet := CastEarningsSheet{
		StoreID:      storeID,
		BusinessDate: engine.FormatBusinessDate(day),
		Rows:         make([]CastEarningsView, 0, len(shifts)),
	}
	book := &salesBook{svc: s, day: day, sales: make(map[int64]int64)}
	seen := make(map[string]struct{}, len(shifts))
	for _, shift := range shifts {
		if _, ok := seen[shift.CastID]; ok {
			continue
		}
		seen[shift.CastID] = struct{}{}
		member, ok := byID[shift.CastID]
		if !ok {
			continue
		}

		row, err := s.castEarnings(ctx, member, members, day, settings, book)
		if err != nil {
			return CastEarningsSheet{}, err
		}
		sheet.Rows = append(sheet.Rows, row)
		sheet.Totals.TimePay += row.TotalTimePay
		sheet.Totals.Backs += row.TotalBacks
		sheet.Totals.Bonus += row.BonusAmount
		sheet.Totals.NetPayout += row.NetPayout
		sheet.Totals.ReferralBonus += row.ReferralBonus
	}
	return sheet, nil
}

// SaveCastDailyEarnings persists the store's payroll sheet for the day.
func (s *Service) SaveCastDailyEarnings(ctx context.Context, storeID int64, date string) (CastEarningsSheet, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return CastEarningsSheet{}, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return CastEarningsSheet{}, err
	}
	storeID = s.storeOrDefault(storeID)

	var sheet CastEarningsSheet
	lockKey := fmt.Sprintf("cast-earnings:%d:%s", storeID, engine.FormatBusinessDate(day))
	err = s.withLock(ctx, lockKey, reportLockTTL, func() error {
		var err error
		sheet, err = s.dailyCastEarnings(ctx, storeID, day)
		if err != nil {
			return err
		}
		now := s.clock()
		rows := make([]domain.CastDailyEarnings, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			rows = append(rows, domain.CastDailyEarnings{
				CastID:        row.CastID,
				BusinessDate:  sheet.BusinessDate,
				WorkMinutes:   row.WorkMinutes,
				TimePay:       row.TotalTimePay,
				Backs:         row.TotalBacks,
				TotalPoints:   row.TotalPoints,
				BonusAmount:   row.BonusAmount,
				Subtotal:      row.Subtotal,
				AfterTax:      row.AfterTax,
				WelfareFee:    row.WelfareFee,
				TransportFee:  row.TransportFee,
				NetPayout:     row.NetPayout,
				ReferralBonus: row.ReferralBonus,
				SavedBy:       actor.Username,
				SavedAt:       now,
			})
		}
		return s.repo.UpsertCastDailyEarnings(ctx, rows)
	})
	if err != nil {
		return CastEarningsSheet{}, err
	}

	s.logAudit(ctx, storeID, "cast_earnings_save", "cast_earnings", sheet.BusinessDate, fmt.Sprintf("rows=%d,net=%d", len(sheet.Rows), sheet.Totals.NetPayout))
	return sheet, nil
}

func (s *Service) ListSavedCastEarnings(ctx context.Context, date string) ([]domain.CastDailyEarnings, error) {
	if _, err := requireStaff(ctx); err != nil {
		return nil, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCastDailyEarnings(ctx, engine.FormatBusinessDate(day))
}
