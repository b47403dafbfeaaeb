package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/events"
)

const reportLockTTL = 15 * time.Second

type salesFigures struct {
	bills           []domain.Bill
	ordersByBill    map[string][]domain.Order
	adjustmentsByID map[string][]domain.PriceAdjustment
	totalSales      int64
	cardSales       int64
	groups          int
	cancelled       int
	open            int
	hourly          map[string]int
}

// storeSales aggregates the bills started in a business day. Cancelled bills
// are counted but contribute nothing to sales or groups.
func (s *Service) storeSales(ctx context.Context, storeID int64, day time.Time) (salesFigures, error) {
	from, to := engine.BusinessDayRange(day)
	bills, err := s.repo.ListBillsByRange(ctx, storeID, from, to)
	if err != nil {
		return salesFigures{}, err
	}
	ids := billIDs(bills)
	orders, err := s.repo.ListOrdersByBills(ctx, ids)
	if err != nil {
		return salesFigures{}, err
	}
	adjustments, err := s.repo.ListAdjustmentsByBills(ctx, ids)
	if err != nil {
		return salesFigures{}, err
	}

	figures := salesFigures{
		bills:           bills,
		ordersByBill:    groupOrders(orders),
		adjustmentsByID: groupAdjustments(adjustments),
		hourly:          make(map[string]int),
	}

	var gross int64
	for _, bill := range bills {
		if bill.IsCancelled() {
			figures.cancelled++
			continue
		}
		figures.groups++
		if bill.Status == domain.BillOpen {
			figures.open++
		}
		hour := strconv.Itoa(bill.StartTime.In(engine.JST).Hour())
		figures.hourly[hour]++

		lines := orderLines(figures.ordersByBill[bill.ID])
		subtotal, err := engine.LinesSubtotal(lines)
		if err != nil {
			return salesFigures{}, fmt.Errorf("bill %s: %w", bill.ID, err)
		}
		deltas := adjustmentDeltas(figures.adjustmentsByID[bill.ID])
		var adjusted int64
		for _, delta := range deltas {
			adjusted += delta
		}
		gross += subtotal + adjusted

		if engine.HasCardSurcharge(bill.PaymentMethod) {
			total, err := engine.BillTotal(lines, deltas)
			if err != nil {
				return salesFigures{}, fmt.Errorf("bill %s: %w", bill.ID, err)
			}
			figures.cardSales += total
		}
	}
	if gross > 0 {
		figures.totalSales = engine.FloorToNearest10(decimal.NewFromInt(gross))
	}
	return figures, nil
}

// DailyReport builds the 日計表 for one store, or every store when storeID is 0.
func (s *Service) DailyReport(ctx context.Context, storeID int64, date string) (DailyReport, error) {
	if _, err := requireStaff(ctx); err != nil {
		return DailyReport{}, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return DailyReport{}, err
	}
	return s.dailyReport(ctx, storeID, day)
}

func (s *Service) dailyReport(ctx context.Context, storeID int64, day time.Time) (DailyReport, error) {
	settings, _, err := s.loadSettings(ctx)
	if err != nil {
		return DailyReport{}, err
	}
	figures, err := s.storeSales(ctx, storeID, day)
	if err != nil {
		return DailyReport{}, err
	}

	weekend := s.holidays.IsWeekendOrHoliday(day)
	report := DailyReport{
		StoreID:          storeID,
		BusinessDate:     engine.FormatBusinessDate(day),
		TotalSales:       figures.totalSales,
		CardSales:        figures.cardSales,
		TotalGroups:      figures.groups,
		CancelledGroups:  figures.cancelled,
		OpenGroups:       figures.open,
		IsWeekendHoliday: weekend,
		BonusThreshold:   engine.BonusThreshold(weekend, settings),
		BonusTier:        engine.ReportBonusTier(figures.totalSales, weekend, settings),
		HourlyEntries:    figures.hourly,
	}
	if figures.groups > 0 {
		report.AvgPerCustomer = figures.totalSales / int64(figures.groups)
	}
	if bonus := engine.DailyBonus(figures.totalSales, 1, weekend, settings); bonus.Qualified {
		report.BonusPerPoint = bonus.BonusPerPoint
	}
	return report, nil
}

// SaveDailyReport snapshots the daily report. Concurrent saves for the same
// store and day are serialized; the losers get ErrBusy.
func (s *Service) SaveDailyReport(ctx context.Context, storeID int64, date string) (domain.DailyReportSnapshot, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.DailyReportSnapshot{}, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return domain.DailyReportSnapshot{}, err
	}
	storeID = s.storeOrDefault(storeID)
	businessDate := engine.FormatBusinessDate(day)

	var saved *domain.DailyReportSnapshot
	lockKey := fmt.Sprintf("daily-report:%d:%s", storeID, businessDate)
	err = s.withLock(ctx, lockKey, reportLockTTL, func() error {
		report, err := s.dailyReport(ctx, storeID, day)
		if err != nil {
			return err
		}
		saved, err = s.repo.UpsertDailyReport(ctx, domain.DailyReportSnapshot{
			StoreID:          storeID,
			BusinessDate:     businessDate,
			TotalSales:       report.TotalSales,
			CardSales:        report.CardSales,
			TotalGroups:      report.TotalGroups,
			AvgPerCustomer:   report.AvgPerCustomer,
			IsWeekendHoliday: report.IsWeekendHoliday,
			BonusTier:        report.BonusTier,
			BonusPerPoint:    report.BonusPerPoint,
			HourlyEntries:    report.HourlyEntries,
			SavedBy:          actor.Username,
			SavedAt:          s.clock(),
		})
		return err
	})
	if err != nil {
		return domain.DailyReportSnapshot{}, err
	}

	s.logAudit(ctx, storeID, "daily_report_save", "daily_report", businessDate, fmt.Sprintf("sales=%d,groups=%d", saved.TotalSales, saved.TotalGroups))
	s.publish(ctx, events.ReportSaved, storeID, businessDate, map[string]any{"total_sales": saved.TotalSales, "total_groups": saved.TotalGroups})
	return *saved, nil
}

func (s *Service) GetDailyReportSnapshot(ctx context.Context, storeID int64, date string) (domain.DailyReportSnapshot, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.DailyReportSnapshot{}, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return domain.DailyReportSnapshot{}, err
	}
	snapshot, err := s.repo.GetDailyReportSnapshot(ctx, s.storeOrDefault(storeID), engine.FormatBusinessDate(day))
	if err != nil {
		return domain.DailyReportSnapshot{}, err
	}
	return *snapshot, nil
}

// SessionLog lists every bill of the business day with its extension history.
func (s *Service) SessionLog(ctx context.Context, storeID int64, date string) ([]SessionLogEntry, error) {
	if _, err := requireStaff(ctx); err != nil {
		return nil, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return nil, err
	}
	storeID = s.storeOrDefault(storeID)
	figures, err := s.storeSales(ctx, storeID, day)
	if err != nil {
		return nil, err
	}
	tables, err := s.repo.ListTables(ctx, storeID)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(tables))
	for _, table := range tables {
		labels[table.ID] = table.Label
	}

	entries := make([]SessionLogEntry, 0, len(figures.bills))
	for _, bill := range figures.bills {
		orders := figures.ordersByBill[bill.ID]
		adjustments := figures.adjustmentsByID[bill.ID]
		entry := SessionLogEntry{
			Bill:       bill,
			TableLabel: labels[bill.TableID],
			Extensions: make([]ExtensionRecord, 0),
		}
		if entry.TableLabel == "" {
			entry.TableLabel = bill.TableID
		}

		live := make([]domain.Order, 0, len(orders))
		for _, order := range orders {
			entry.OrdersCount++
			if order.IsCancelled {
				entry.CancelledOrders++
			} else {
				live = append(live, order)
			}
			if order.Category == domain.CategoryExtension {
				entry.Extensions = append(entry.Extensions, ExtensionRecord{
					OrderID:     order.ID,
					ProductName: order.ProductName,
					Minutes:     order.ExtensionMinutes * order.Quantity,
					Tier:        order.ExtensionTier,
					CastID:      order.CastID,
					CreatedAt:   order.CreatedAt,
					IsCancelled: order.IsCancelled,
				})
				if !order.IsCancelled {
					entry.ExtensionMinutes += order.ExtensionMinutes * order.Quantity
				}
			}
			if order.Category == domain.CategorySet && !order.IsCancelled {
				charge, err := engine.LineCharge(order.UnitPrice, order.Quantity, order.TaxApplicable)
				if err != nil {
					return nil, fmt.Errorf("order %s: %w", order.ID, err)
				}
				entry.BaseCharge += charge
			}
		}
		for _, adj := range adjustments {
			entry.AdjustmentTotal += adj.Delta
		}

		if bill.IsCancelled() {
			entry.CancelReason = SessionCancelReason
		} else {
			total, err := engine.BillTotal(orderLines(live), adjustmentDeltas(adjustments))
			if err != nil {
				return nil, fmt.Errorf("bill %s: %w", bill.ID, err)
			}
			entry.Total = total
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID int64, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	day, err := s.businessDay(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	from, to := engine.BusinessDayRange(day)
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}
