package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BARLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BARLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestBillLifecycleAndDesignationCounter(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	tableID := fmt.Sprintf("it-table-%d", stamp)
	castID := fmt.Sprintf("it-cast-%d", stamp)
	productID := fmt.Sprintf("it-ext-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_designations WHERE cast_id = $1`, castID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cast_assignments WHERE cast_id = $1`, castID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE table_id = $1`, tableID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cast_members WHERE id = $1`, castID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM floor_tables WHERE id = $1`, tableID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO floor_tables (id, store_id, label, seats, active)
		VALUES ($1, 1, 'IT', 2, true)
	`, tableID); err != nil {
		t.Fatalf("insert table: %v", err)
	}
	if _, err := s.CreateCastMember(ctx, domain.CastMember{ID: castID, Name: "IT", Username: castID, PINHash: "x", HourlyRate: 4000}); err != nil {
		t.Fatalf("create cast: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "IT extension", Category: domain.CategoryExtension, Price: 3000, TaxApplicable: true,
		ExtensionMinutes: 20, ExtensionTier: domain.ExtensionTierInhouse,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	start := time.Now().UTC().Truncate(time.Second)
	bill, err := s.CreateBill(ctx, domain.Bill{
		TableID: tableID, SeatingTier: domain.SeatingFree, StartTime: start, BaseMinutes: 60,
		ReadToken: fmt.Sprintf("tok%d", stamp), OpenedBy: "it",
	}, []domain.CastAssignment{{CastID: castID, AssignedBy: "it"}})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if bill.StoreID != 1 {
		t.Fatalf("expected store 1 from table, got %d", bill.StoreID)
	}

	_, err = s.CreateBill(ctx, domain.Bill{
		TableID: tableID, SeatingTier: domain.SeatingFree, StartTime: start, BaseMinutes: 60,
		ReadToken: fmt.Sprintf("tok%d-2", stamp), OpenedBy: "it",
	}, nil)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for second open bill, got %v", err)
	}

	rule := func(d domain.BillDesignation, tier domain.SeatingTier) (bool, domain.SeatingTier) {
		if d.ExtensionCount < 3 {
			return false, tier
		}
		if tier == domain.SeatingFree {
			return true, domain.SeatingDesignated
		}
		return true, tier
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		marked   int
		upgraded int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := s.CreateExtensionOrder(ctx, domain.Order{
				BillID: bill.ID, ProductID: productID, ProductName: "IT extension", Category: domain.CategoryExtension,
				CastID: castID, Quantity: 1, UnitPrice: 3000, TaxApplicable: true, ExtensionMinutes: 20,
				ExtensionTier: domain.ExtensionTierInhouse, CreatedBy: "it", CreatedAt: start,
			}, rule, start)
			if err != nil {
				t.Errorf("extension order: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if outcome.Marked {
				marked++
			}
			if outcome.Upgraded() {
				upgraded++
			}
		}()
	}
	wg.Wait()

	designations, err := s.ListDesignations(ctx, bill.ID)
	if err != nil {
		t.Fatalf("list designations: %v", err)
	}
	if len(designations) != 1 || designations[0].ExtensionCount != 6 || !designations[0].IsDesignated {
		t.Fatalf("expected one designated row with count 6, got %+v", designations)
	}
	if marked != 1 || upgraded != 1 {
		t.Fatalf("expected one mark and one upgrade, got %d and %d", marked, upgraded)
	}
	upgradedBill, err := s.GetBill(ctx, bill.ID)
	if err != nil || upgradedBill.SeatingTier != domain.SeatingDesignated {
		t.Fatalf("expected designated bill, got %+v %v", upgradedBill, err)
	}

	castOrders, err := s.ListCastOrders(ctx, castID, start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("list cast orders: %v", err)
	}
	if len(castOrders) != 6 || castOrders[0].Consumers != 1 || castOrders[0].StoreID != 1 {
		t.Fatalf("unexpected cast orders: %+v", castOrders)
	}

	cancelled, err := s.CancelBill(ctx, bill.ID, "it", "test", start.Add(time.Hour))
	if err != nil {
		t.Fatalf("cancel bill: %v", err)
	}
	if !cancelled.IsCancelled() || cancelled.Status != domain.BillClosed {
		t.Fatalf("unexpected cancelled bill: %+v", cancelled)
	}

	orders, err := s.ListOrdersByBills(ctx, []string{bill.ID})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	for _, order := range orders {
		if !order.IsCancelled || order.CancelReason != "test" {
			t.Fatalf("expected cancelled order, got %+v", order)
		}
	}
	if len(orders) != 6 {
		t.Fatalf("expected 6 orders, got %d", len(orders))
	}
	active, err := s.ListAssignments(ctx, bill.ID, true)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active assignments, got %d", len(active))
	}
}

func TestDailyReportSnapshotRoundTripsHourlyEntries(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	date := "1999-01-02"
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM daily_reports WHERE store_id = 2 AND business_date = $1`, date)
	})

	snapshot := domain.DailyReportSnapshot{
		StoreID: 2, BusinessDate: date, TotalSales: 420000, CardSales: 120000, TotalGroups: 7,
		AvgPerCustomer: 60000, BonusTier: 1, BonusPerPoint: 400,
		HourlyEntries: map[string]int{"20": 2, "21": 5}, SavedBy: "it", SavedAt: time.Now().UTC(),
	}
	if _, err := s.UpsertDailyReport(ctx, snapshot); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snapshot.TotalSales = 430000
	if _, err := s.UpsertDailyReport(ctx, snapshot); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetDailyReportSnapshot(ctx, 2, date)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got.TotalSales != 430000 || got.BusinessDate != date || got.HourlyEntries["21"] != 5 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}
