package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"barledger/backend/internal/cache"
	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/events"
	"barledger/backend/internal/store"
	"barledger/backend/internal/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// 2025-06-10 is a Tuesday with no holiday on either side.
var testOpening = time.Date(2025, time.June, 10, 20, 0, 0, 0, engine.JST)

func newTestService(t *testing.T) (*Service, *testClock, *events.Recorder) {
	t.Helper()
	clock := &testClock{now: testOpening}
	recorder := &events.Recorder{}
	svc := New(memory.NewSeeded(), Options{
		Publisher:             recorder,
		Now:                   clock.Now,
		ExtensionPreviewPrice: 3000,
	})
	return svc, clock, recorder
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func castCtx(castID string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: castID, Role: domain.RoleCast, CastID: castID})
}

func startSession(t *testing.T, svc *Service, tableID string, tier domain.SeatingTier, castIDs ...string) BillDetail {
	t.Helper()
	detail, err := svc.StartSession(staffCtx(), domain.SessionStartRequest{
		TableID:     tableID,
		SeatingTier: tier,
		BaseMinutes: 60,
		CastIDs:     castIDs,
	})
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	return detail
}

func addOrder(t *testing.T, svc *Service, billID string, productID string, castID string, qty int) domain.Order {
	t.Helper()
	order, err := svc.AddOrder(staffCtx(), billID, domain.OrderCreateRequest{ProductID: productID, CastID: castID, Quantity: qty})
	if err != nil {
		t.Fatalf("add order %s failed: %v", productID, err)
	}
	return order
}

func TestStartSessionAndCustomerView(t *testing.T) {
	svc, clock, recorder := newTestService(t)

	detail := startSession(t, svc, "s1-a1", domain.SeatingFree, "cast-akari", "cast-akari")
	if len(detail.Assignments) != 1 {
		t.Fatalf("expected duplicate cast ids to collapse, got %d assignments", len(detail.Assignments))
	}
	if len(detail.Bill.ReadToken) != 12 {
		t.Fatalf("expected 12-char read token, got %q", detail.Bill.ReadToken)
	}
	addOrder(t, svc, detail.Bill.ID, "prd-set-60", "", 1)

	clock.Advance(56 * time.Minute)
	view, err := svc.CustomerBillByToken(context.Background(), detail.Bill.ReadToken)
	if err != nil {
		t.Fatalf("customer view failed: %v", err)
	}
	if view.CurrentTotal != 6000 || view.DisplayTotal != 6000 {
		t.Fatalf("expected 6000 total, got %d/%d", view.CurrentTotal, view.DisplayTotal)
	}
	if view.RemainingMinutes != 4 || !view.ShowExtensionPreview {
		t.Fatalf("expected 4 minutes left with preview, got %d %v", view.RemainingMinutes, view.ShowExtensionPreview)
	}
	if view.ExtensionPreviewTotal != 9600 {
		t.Fatalf("expected extension preview 9600, got %d", view.ExtensionPreviewTotal)
	}
	if view.TableLabel != "A1" || len(view.Lines) != 1 {
		t.Fatalf("unexpected customer view: %+v", view)
	}

	view, err = svc.SelectPaymentMethodByToken(context.Background(), detail.Bill.ReadToken, domain.PaymentCard)
	if err != nil {
		t.Fatalf("select payment failed: %v", err)
	}
	if view.DisplayTotal != 6600 || !view.CardSurchargeApplied {
		t.Fatalf("expected card display total 6600, got %d", view.DisplayTotal)
	}

	if _, err := svc.SelectPaymentMethodByToken(context.Background(), detail.Bill.ReadToken, domain.PaymentSplit); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected split to be staff-only, got %v", err)
	}
	if !slices.Contains(recorder.Keys(), events.BillOpened) {
		t.Fatalf("expected bill.opened event, got %v", recorder.Keys())
	}
}

func TestStartSessionRejectsSecondOpenBillOnTable(t *testing.T) {
	svc, _, _ := newTestService(t)
	startSession(t, svc, "s1-a2", domain.SeatingFree)

	_, err := svc.StartSession(staffCtx(), domain.SessionStartRequest{TableID: "s1-a2", SeatingTier: domain.SeatingFree, BaseMinutes: 40})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestStartSessionValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.StartSession(staffCtx(), domain.SessionStartRequest{TableID: "s1-a1", SeatingTier: domain.SeatingFree, BaseMinutes: 45})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid base minutes, got %v", err)
	}
	_, err = svc.StartSession(castCtx("cast-akari"), domain.SessionStartRequest{TableID: "s1-a1", SeatingTier: domain.SeatingFree, BaseMinutes: 60})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cast to be forbidden, got %v", err)
	}
}

func TestThirdDesignationExtensionUpgradesBill(t *testing.T) {
	svc, clock, recorder := newTestService(t)
	bill := startSession(t, svc, "s1-b1", domain.SeatingFree, "cast-akari")

	early := addOrder(t, svc, bill.Bill.ID, "prd-bottle-moet", "cast-akari", 1)
	if early.BackAmount != 3000 {
		t.Fatalf("expected free-tier bottle back 3000, got %d", early.BackAmount)
	}

	for i := 0; i < 2; i++ {
		clock.Advance(time.Minute)
		addOrder(t, svc, bill.Bill.ID, "prd-ext-designated-20", "cast-akari", 1)
	}
	detail, err := svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if detail.Bill.SeatingTier != domain.SeatingFree {
		t.Fatalf("expected free tier after two extensions, got %s", detail.Bill.SeatingTier)
	}

	addOrder(t, svc, bill.Bill.ID, "prd-ext-designated-20", "cast-akari", 1)
	detail, err = svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if detail.Bill.SeatingTier != domain.SeatingDesignated {
		t.Fatalf("expected designated tier, got %s", detail.Bill.SeatingTier)
	}
	if len(detail.Designations) != 1 || !detail.Designations[0].IsDesignated || detail.Designations[0].ExtensionCount != 3 {
		t.Fatalf("unexpected designations: %+v", detail.Designations)
	}
	if detail.View.TotalMinutes != 120 {
		t.Fatalf("expected 60 base + 3x20 extension minutes, got %d", detail.View.TotalMinutes)
	}

	late := addOrder(t, svc, bill.Bill.ID, "prd-bottle-moet", "cast-akari", 1)
	if late.BackAmount != 4500 {
		t.Fatalf("expected designated bottle back 4500, got %d", late.BackAmount)
	}
	orders := detail.Orders
	if orders[0].BackAmount != 3000 {
		t.Fatalf("expected earlier order back to stay 3000, got %d", orders[0].BackAmount)
	}

	addOrder(t, svc, bill.Bill.ID, "prd-ext-designated-20", "cast-akari", 1)
	upgrades := 0
	for _, key := range recorder.Keys() {
		if key == events.BillUpgraded {
			upgrades++
		}
	}
	if upgrades != 1 {
		t.Fatalf("expected exactly one upgrade event, got %d", upgrades)
	}
}

var errRepoDown = errors.New("repository unavailable")

// extensionFailingRepo lets the first okCalls extension orders through and
// fails the rest.
type extensionFailingRepo struct {
	store.Repository
	okCalls int
	calls   int
}

func (r *extensionFailingRepo) CreateExtensionOrder(ctx context.Context, order domain.Order, rule store.DesignationRule, at time.Time) (*store.ExtensionOutcome, error) {
	r.calls++
	if r.calls > r.okCalls {
		return nil, errRepoDown
	}
	return r.Repository.CreateExtensionOrder(ctx, order, rule, at)
}

func TestFailedUpgradeLeavesNoPartialState(t *testing.T) {
	repo := &extensionFailingRepo{Repository: memory.NewSeeded(), okCalls: 2}
	recorder := &events.Recorder{}
	svc := New(repo, Options{Publisher: recorder, Now: func() time.Time { return testOpening }})
	bill := startSession(t, svc, "s1-b1", domain.SeatingFree, "cast-akari")

	addOrder(t, svc, bill.Bill.ID, "prd-ext-designated-20", "cast-akari", 1)
	addOrder(t, svc, bill.Bill.ID, "prd-ext-designated-20", "cast-akari", 1)

	_, err := svc.AddOrder(staffCtx(), bill.Bill.ID, domain.OrderCreateRequest{ProductID: "prd-ext-designated-20", CastID: "cast-akari", Quantity: 1})
	if !errors.Is(err, errRepoDown) {
		t.Fatalf("expected the repository error to reach the caller, got %v", err)
	}

	detail, err := svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if detail.Bill.SeatingTier != domain.SeatingFree {
		t.Fatalf("expected bill to stay free, got %s", detail.Bill.SeatingTier)
	}
	if len(detail.Orders) != 2 {
		t.Fatalf("expected only the two stored extensions, got %d orders", len(detail.Orders))
	}
	if len(detail.Designations) != 1 || detail.Designations[0].ExtensionCount != 2 || detail.Designations[0].IsDesignated {
		t.Fatalf("expected an undesignated pair with two extensions, got %+v", detail.Designations)
	}
	if slices.Contains(recorder.Keys(), events.BillUpgraded) {
		t.Fatalf("expected no upgrade event, got %v", recorder.Keys())
	}
}

func TestTieredExtensionRequiresCast(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := startSession(t, svc, "s1-b2", domain.SeatingFree)

	_, err := svc.AddOrder(staffCtx(), bill.Bill.ID, domain.OrderCreateRequest{ProductID: "prd-ext-inhouse-20"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	order := addOrder(t, svc, bill.Bill.ID, "prd-ext-20", "", 0)
	if order.Quantity != 1 || order.BackAmount != 0 {
		t.Fatalf("expected plain extension with default quantity, got %+v", order)
	}
}

func TestCastActorOrdersOnOwnBehalf(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := startSession(t, svc, "s1-b3", domain.SeatingFree, "cast-mio")

	_, err := svc.AddOrder(castCtx("cast-mio"), bill.Bill.ID, domain.OrderCreateRequest{ProductID: "prd-drink-s", CastID: "cast-akari"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	order, err := svc.AddOrder(castCtx("cast-mio"), bill.Bill.ID, domain.OrderCreateRequest{ProductID: "prd-drink-s"})
	if err != nil {
		t.Fatalf("add order failed: %v", err)
	}
	if order.CastID != "cast-mio" || order.BackAmount != 200 {
		t.Fatalf("expected order attributed to mio with back 200, got %+v", order)
	}
}

func TestAddAdjustmentRejectsNegativeTotal(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := startSession(t, svc, "s1-a3", domain.SeatingFree)
	addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)

	_, err := svc.AddAdjustment(staffCtx(), bill.Bill.ID, domain.AdjustmentCreateRequest{
		Type: domain.AdjustmentDiscount, Delta: -7000, Reason: "常連割",
	})
	if !errors.Is(err, engine.ErrNegativeTotal) {
		t.Fatalf("expected negative total error, got %v", err)
	}

	if _, err := svc.AddAdjustment(staffCtx(), bill.Bill.ID, domain.AdjustmentCreateRequest{
		Type: domain.AdjustmentDiscount, Delta: -1000, Reason: "常連割",
	}); err != nil {
		t.Fatalf("add adjustment failed: %v", err)
	}
	detail, err := svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if detail.View.CurrentTotal != 5000 {
		t.Fatalf("expected 5000 after discount, got %d", detail.View.CurrentTotal)
	}

	_, err = svc.AddAdjustment(staffCtx(), bill.Bill.ID, domain.AdjustmentCreateRequest{
		Type: domain.AdjustmentDiscount, Delta: 500, Reason: "wrong sign",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected positive discount to be rejected, got %v", err)
	}
}

func TestAddAdjustmentReturnsBusyWhileLocked(t *testing.T) {
	locker := cache.NewLocalLocker()
	svc := New(memory.NewSeeded(), Options{Locker: locker, Now: func() time.Time { return testOpening }})
	bill := startSession(t, svc, "s1-a4", domain.SeatingFree)

	lock, err := locker.Obtain(context.Background(), "bill-adjust:"+bill.Bill.ID, time.Minute)
	if err != nil {
		t.Fatalf("obtain lock: %v", err)
	}
	defer lock.Release(context.Background())

	_, err = svc.AddAdjustment(staffCtx(), bill.Bill.ID, domain.AdjustmentCreateRequest{
		Type: domain.AdjustmentCustom, Delta: 1000, Reason: "持ち込み料",
	})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestCancelSessionCancelsOrdersAndFreesTable(t *testing.T) {
	svc, _, recorder := newTestService(t)
	bill := startSession(t, svc, "s1-a5", domain.SeatingFree, "cast-yuna")
	addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)
	addOrder(t, svc, bill.Bill.ID, "prd-drink-l", "cast-yuna", 2)

	detail, err := svc.CancelSession(staffCtx(), bill.Bill.ID, "誤入力")
	if err != nil {
		t.Fatalf("cancel session failed: %v", err)
	}
	if !detail.Bill.IsCancelled() || detail.Bill.Status != domain.BillClosed {
		t.Fatalf("expected cancelled bill, got %+v", detail.Bill)
	}
	for _, order := range detail.Orders {
		if !order.IsCancelled || order.CancelReason != SessionCancelReason {
			t.Fatalf("expected order cancelled with session reason, got %+v", order)
		}
	}
	for _, a := range detail.Assignments {
		if a.Active {
			t.Fatalf("expected assignments deactivated")
		}
	}
	if detail.View.CurrentTotal != 0 {
		t.Fatalf("expected zero total, got %d", detail.View.CurrentTotal)
	}
	if !slices.Contains(recorder.Keys(), events.BillCancelled) {
		t.Fatalf("expected bill.cancelled event")
	}

	startSession(t, svc, "s1-a5", domain.SeatingFree)
}

func TestEndSessionFreezesView(t *testing.T) {
	svc, clock, _ := newTestService(t)
	bill := startSession(t, svc, "s1-a6", domain.SeatingFree)
	addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)

	clock.Advance(70 * time.Minute)
	closed, err := svc.EndSession(staffCtx(), bill.Bill.ID, domain.PaymentCash)
	if err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if closed.View.RemainingMinutes != -10 {
		t.Fatalf("expected 10 minutes overdue, got %d", closed.View.RemainingMinutes)
	}

	clock.Advance(2 * time.Hour)
	later, err := svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if later.View.ElapsedMinutes != 70 {
		t.Fatalf("expected view frozen at 70 minutes, got %d", later.View.ElapsedMinutes)
	}

	if _, err := svc.EndSession(staffCtx(), bill.Bill.ID, domain.PaymentCash); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second close, got %v", err)
	}
}

func TestCancelOrderExcludesFromTotal(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := startSession(t, svc, "s1-b1", domain.SeatingFree)
	addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)
	drink := addOrder(t, svc, bill.Bill.ID, "prd-drink-guest", "", 2)

	if _, err := svc.CancelOrder(staffCtx(), drink.ID, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected reason to be required, got %v", err)
	}
	cancelled, err := svc.CancelOrder(staffCtx(), drink.ID, "注文間違い")
	if err != nil {
		t.Fatalf("cancel order failed: %v", err)
	}
	if !cancelled.IsCancelled || cancelled.CancelledBy != "staff" {
		t.Fatalf("unexpected cancelled order: %+v", cancelled)
	}

	detail, err := svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if detail.View.CurrentTotal != 6000 || len(detail.Orders) != 2 {
		t.Fatalf("expected cancelled order kept but excluded, got total %d and %d orders", detail.View.CurrentTotal, len(detail.Orders))
	}
}

func TestCancelOrderRejectsNegativeTotalAfterDiscount(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := startSession(t, svc, "s1-b2", domain.SeatingFree)
	set := addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)
	if _, err := svc.AddAdjustment(staffCtx(), bill.Bill.ID, domain.AdjustmentCreateRequest{
		Type: domain.AdjustmentDiscount, Delta: -5000, Reason: "常連割",
	}); err != nil {
		t.Fatalf("add adjustment failed: %v", err)
	}

	if _, err := svc.CancelOrder(staffCtx(), set.ID, "注文間違い"); !errors.Is(err, engine.ErrNegativeTotal) {
		t.Fatalf("expected negative total error, got %v", err)
	}

	detail, err := svc.GetBill(staffCtx(), bill.Bill.ID)
	if err != nil {
		t.Fatalf("get bill failed: %v", err)
	}
	if detail.View.CurrentTotal != 1000 || detail.Orders[0].IsCancelled {
		t.Fatalf("expected set kept and total 1000, got total %d and order %+v", detail.View.CurrentTotal, detail.Orders[0])
	}
	if _, err := svc.ListTables(staffCtx(), 1); err != nil {
		t.Fatalf("list tables failed: %v", err)
	}
}

func TestCancelOrderReturnsBusyWhileBillLocked(t *testing.T) {
	locker := cache.NewLocalLocker()
	svc := New(memory.NewSeeded(), Options{Locker: locker, Now: func() time.Time { return testOpening }})
	bill := startSession(t, svc, "s1-b3", domain.SeatingFree)
	order := addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)

	lock, err := locker.Obtain(context.Background(), "bill-adjust:"+bill.Bill.ID, time.Minute)
	if err != nil {
		t.Fatalf("obtain lock: %v", err)
	}
	defer lock.Release(context.Background())

	if _, err := svc.CancelOrder(staffCtx(), order.ID, "注文間違い"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
}

// skewedAdjustmentsRepo reports an extra discount on one bill so its figures
// cannot be computed.
type skewedAdjustmentsRepo struct {
	store.Repository
	billID string
}

func (r skewedAdjustmentsRepo) ListAdjustmentsByBills(ctx context.Context, billIDs []string) ([]domain.PriceAdjustment, error) {
	adjustments, err := r.Repository.ListAdjustmentsByBills(ctx, billIDs)
	if err != nil {
		return nil, err
	}
	if slices.Contains(billIDs, r.billID) {
		adjustments = append(adjustments, domain.PriceAdjustment{BillID: r.billID, Type: domain.AdjustmentCustom, Delta: -100000})
	}
	return adjustments, nil
}

func TestListTablesKeepsOtherBillsWhenOneCannotBeTotalled(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, Options{Now: func() time.Time { return testOpening }})
	broken := startSession(t, svc, "s1-a1", domain.SeatingFree)
	healthy := startSession(t, svc, "s1-a2", domain.SeatingFree)
	addOrder(t, svc, healthy.Bill.ID, "prd-set-60", "", 1)

	skewed := New(skewedAdjustmentsRepo{Repository: repo, billID: broken.Bill.ID}, Options{Now: func() time.Time { return testOpening }})
	tables, err := skewed.ListTables(staffCtx(), 1)
	if err != nil {
		t.Fatalf("list tables failed: %v", err)
	}
	checked := 0
	for _, table := range tables {
		switch table.Table.ID {
		case "s1-a1":
			checked++
			if table.OpenBill == nil || table.OpenBill.TotalError == "" {
				t.Fatalf("expected s1-a1 to be listed with an error, got %+v", table.OpenBill)
			}
		case "s1-a2":
			if table.OpenBill == nil || table.OpenBill.CurrentTotal != 6000 || table.OpenBill.TotalError != "" {
				t.Fatalf("expected s1-a2 total 6000, got %+v", table.OpenBill)
			}
			checked++
		}
	}
	if checked != 2 {
		t.Fatalf("expected both tables listed, checked %d", checked)
	}
}

func TestShiftReviewFlow(t *testing.T) {
	svc, clock, _ := newTestService(t)

	shift, err := svc.ClockIn(castCtx("cast-akari"), domain.ClockInRequest{StoreID: 1})
	if err != nil {
		t.Fatalf("clock in failed: %v", err)
	}
	if shift.ClockInStatus != domain.ApprovalPending {
		t.Fatalf("expected pending clock-in, got %s", shift.ClockInStatus)
	}
	if _, err := svc.ClockIn(castCtx("cast-akari"), domain.ClockInRequest{StoreID: 1}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second clock-in conflict, got %v", err)
	}
	if _, err := svc.ApproveClockIn(castCtx("cast-akari"), shift.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cast approval to be forbidden, got %v", err)
	}

	if _, err := svc.ApproveClockIn(staffCtx(), shift.ID); err != nil {
		t.Fatalf("approve clock-in failed: %v", err)
	}
	if _, err := svc.RejectClockIn(staffCtx(), shift.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected decided edge to conflict, got %v", err)
	}

	clock.Advance(4 * time.Hour)
	current, err := svc.CurrentShift(castCtx("cast-akari"))
	if err != nil || current == nil {
		t.Fatalf("expected open shift, got %v %v", current, err)
	}
	out, err := svc.ClockOut(castCtx("cast-akari"))
	if err != nil {
		t.Fatalf("clock out failed: %v", err)
	}
	if out.ClockOutStatus != domain.ApprovalPending {
		t.Fatalf("expected pending clock-out, got %s", out.ClockOutStatus)
	}
	pending, err := svc.ListPendingShifts(staffCtx(), 1)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending shift, got %d %v", len(pending), err)
	}
	if _, err := svc.ApproveClockOut(staffCtx(), shift.ID); err != nil {
		t.Fatalf("approve clock-out failed: %v", err)
	}

	current, err = svc.CurrentShift(castCtx("cast-akari"))
	if err != nil || current != nil {
		t.Fatalf("expected no open shift, got %v %v", current, err)
	}

	late := testOpening.Add(-time.Hour)
	marked, err := svc.MarkLatePickup(staffCtx(), shift.ID, &late)
	if err != nil {
		t.Fatalf("mark late pickup failed: %v", err)
	}
	if !marked.IsLatePickup || marked.LatePickupStart == nil || !marked.LatePickupStart.Equal(shift.ClockIn) {
		t.Fatalf("expected late pickup clamped to clock-in, got %+v", marked)
	}
}

func TestDailyReportAndCastEarnings(t *testing.T) {
	svc, clock, recorder := newTestService(t)

	for _, castID := range []string{"cast-akari", "cast-mio"} {
		shift, err := svc.ClockIn(castCtx(castID), domain.ClockInRequest{StoreID: 1})
		if err != nil {
			t.Fatalf("clock in %s failed: %v", castID, err)
		}
		if _, err := svc.ApproveClockIn(staffCtx(), shift.ID); err != nil {
			t.Fatalf("approve %s failed: %v", castID, err)
		}
		clock.Advance(time.Minute)
	}

	bill := startSession(t, svc, "s1-a1", domain.SeatingFree, "cast-akari")
	addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)
	addOrder(t, svc, bill.Bill.ID, "prd-bottle-veuve", "cast-akari", 9)
	if _, err := svc.SetPaymentMethod(staffCtx(), bill.Bill.ID, domain.PaymentCard); err != nil {
		t.Fatalf("set payment failed: %v", err)
	}

	cancelled := startSession(t, svc, "s1-a2", domain.SeatingFree)
	addOrder(t, svc, cancelled.Bill.ID, "prd-set-60", "", 1)
	if _, err := svc.CancelSession(staffCtx(), cancelled.Bill.ID, "test"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	clock.Advance(3*time.Hour - 2*time.Minute)
	if _, err := svc.EndSession(staffCtx(), bill.Bill.ID, domain.PaymentCard); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if _, err := svc.ClockOut(castCtx("cast-akari")); err != nil {
		t.Fatalf("clock out failed: %v", err)
	}

	report, err := svc.DailyReport(staffCtx(), 1, "2025-06-10")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.TotalSales != 438000 || report.CardSales != 438000 {
		t.Fatalf("expected sales 438000, got %d card %d", report.TotalSales, report.CardSales)
	}
	if report.TotalGroups != 1 || report.CancelledGroups != 1 || report.AvgPerCustomer != 438000 {
		t.Fatalf("unexpected group counts: %+v", report)
	}
	if report.BonusTier != 1 || report.BonusPerPoint != 200 || report.HourlyEntries["20"] != 1 {
		t.Fatalf("unexpected bonus figures: %+v", report)
	}

	earnings, err := svc.CastEarnings(castCtx("cast-akari"), "", "2025-06-10")
	if err != nil {
		t.Fatalf("cast earnings failed: %v", err)
	}
	if earnings.TotalTimePay != 12000 || earnings.TotalBacks != 36000 {
		t.Fatalf("expected time pay 12000 and backs 36000, got %d %d", earnings.TotalTimePay, earnings.TotalBacks)
	}
	if earnings.TotalPoints != 90 || earnings.BonusAmount != 18000 {
		t.Fatalf("expected 90 points and bonus 18000, got %d %d", earnings.TotalPoints, earnings.BonusAmount)
	}
	if earnings.NetPayout != 58400 || earnings.ReferralBonus != 2000 {
		t.Fatalf("expected net 58400 and referral 2000, got %d %d", earnings.NetPayout, earnings.ReferralBonus)
	}

	if _, err := svc.CastEarnings(castCtx("cast-mio"), "cast-akari", "2025-06-10"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cast to be limited to own earnings, got %v", err)
	}

	sheet, err := svc.SaveCastDailyEarnings(staffCtx(), 1, "2025-06-10")
	if err != nil {
		t.Fatalf("save earnings failed: %v", err)
	}
	if len(sheet.Rows) != 2 || sheet.Rows[0].CastID != "cast-akari" {
		t.Fatalf("expected akari then mio on the sheet, got %+v", sheet.Rows)
	}
	saved, err := svc.ListSavedCastEarnings(staffCtx(), "2025-06-10")
	if err != nil || len(saved) != 2 {
		t.Fatalf("expected two saved rows, got %d %v", len(saved), err)
	}

	snapshot, err := svc.SaveDailyReport(staffCtx(), 1, "2025-06-10")
	if err != nil {
		t.Fatalf("save report failed: %v", err)
	}
	if snapshot.TotalSales != 438000 || snapshot.SavedBy != "staff" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if !slices.Contains(recorder.Keys(), events.ReportSaved) {
		t.Fatalf("expected report.saved event")
	}
}

func TestSaveDailyReportReturnsBusyWhileLocked(t *testing.T) {
	locker := cache.NewLocalLocker()
	svc := New(memory.NewSeeded(), Options{Locker: locker, Now: func() time.Time { return testOpening }})

	lock, err := locker.Obtain(context.Background(), "daily-report:1:2025-06-10", time.Minute)
	if err != nil {
		t.Fatalf("obtain lock: %v", err)
	}
	defer lock.Release(context.Background())

	if _, err := svc.SaveDailyReport(staffCtx(), 1, "2025-06-10"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestSessionLogListsExtensionsAndCancellations(t *testing.T) {
	svc, clock, _ := newTestService(t)

	bill := startSession(t, svc, "s1-b2", domain.SeatingInhouse, "cast-yuna")
	addOrder(t, svc, bill.Bill.ID, "prd-set-60", "", 1)
	clock.Advance(55 * time.Minute)
	addOrder(t, svc, bill.Bill.ID, "prd-ext-inhouse-20", "cast-yuna", 1)
	addOrder(t, svc, bill.Bill.ID, "prd-ext-40", "", 1)

	other := startSession(t, svc, "s1-b3", domain.SeatingFree)
	if _, err := svc.CancelSession(staffCtx(), other.Bill.ID, ""); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	entries, err := svc.SessionLog(staffCtx(), 1, "2025-06-10")
	if err != nil {
		t.Fatalf("session log failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	first := entries[0]
	if first.TableLabel != "B2" || first.BaseCharge != 6000 || first.ExtensionMinutes != 60 || len(first.Extensions) != 2 {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if first.Total != 6000+3600+6000 {
		t.Fatalf("expected total 15600, got %d", first.Total)
	}
	if entries[1].CancelReason != SessionCancelReason {
		t.Fatalf("expected cancelled entry, got %+v", entries[1])
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := domain.ProductCreateRequest{
		Name: "本指名延長40分(新)", Category: domain.CategoryExtension, Price: 6500, TaxApplicable: true,
		ExtensionMinutes: 40, ExtensionTier: domain.ExtensionTierDesignated,
	}

	if _, err := svc.CreateProduct(staffCtx(), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for staff, got %v", err)
	}
	created, err := svc.CreateProduct(adminCtx(), req)
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if !created.AdvancesDesignation() {
		t.Fatalf("expected designated extension to advance designation")
	}

	price := int64(7000)
	if _, err := svc.UpdateProduct(adminCtx(), created.ID, domain.ProductUpdateRequest{Price: &price}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	history, err := svc.ListProductPriceHistory(adminCtx(), created.ID, 10)
	if err != nil || len(history) != 1 || history[0].OldPrice != 6500 || history[0].NewPrice != 7000 {
		t.Fatalf("unexpected price history: %+v %v", history, err)
	}
}

func TestUpdateSettingValidatesAndFeedsSettings(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.UpdateSetting(adminCtx(), engine.KeyTaxRate, 120); !errors.Is(err, engine.ErrInvalidSetting) {
		t.Fatalf("expected invalid setting, got %v", err)
	}
	if _, err := svc.UpdateSetting(staffCtx(), engine.KeyWelfareFee, 500); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff to be forbidden, got %v", err)
	}
	if _, err := svc.UpdateSetting(adminCtx(), engine.KeyWelfareFee, 500); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}

	view, err := svc.GetSettings(staffCtx())
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if view.Settings.WelfareFee != 500 || view.Settings.TaxRatePercent != 90 || len(view.Stored) != 1 {
		t.Fatalf("unexpected settings view: %+v", view)
	}
}

func TestListTablesShowsOpenBills(t *testing.T) {
	svc, clock, _ := newTestService(t)
	bill := startSession(t, svc, "s1-a1", domain.SeatingFree, "cast-akari")
	clock.Advance(65 * time.Minute)

	tables, err := svc.ListTables(staffCtx(), 1)
	if err != nil {
		t.Fatalf("list tables failed: %v", err)
	}
	var found *TableStatus
	for i := range tables {
		if tables[i].Table.ID == "s1-a1" {
			found = &tables[i]
		}
		if tables[i].Table.StoreID != 1 {
			t.Fatalf("expected only store 1 tables, got %+v", tables[i].Table)
		}
	}
	if found == nil || found.OpenBill == nil || found.OpenBill.BillID != bill.Bill.ID {
		t.Fatalf("expected open bill on A1, got %+v", found)
	}
	if found.OpenBill.RemainingMinutes != -5 || found.OpenBill.CastIDs[0] != "cast-akari" {
		t.Fatalf("unexpected summary: %+v", found.OpenBill)
	}
}
