package store

import (
	"context"
	"errors"
	"time"

	"barledger/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict covers state transitions that are no longer allowed: a second
	// open bill on a table, a second open shift, closing a closed bill.
	ErrConflict = errors.New("conflict")
)

type Repository interface {
	ListStores(ctx context.Context) ([]domain.Store, error)
	ListTables(ctx context.Context, storeID int64) ([]domain.FloorTable, error)
	GetTable(ctx context.Context, tableID string) (*domain.FloorTable, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)

	CreateBill(ctx context.Context, bill domain.Bill, assignments []domain.CastAssignment) (*domain.Bill, error)
	GetBill(ctx context.Context, billID string) (*domain.Bill, error)
	GetBillByToken(ctx context.Context, token string) (*domain.Bill, error)
	GetOpenBillByTable(ctx context.Context, tableID string) (*domain.Bill, error)
	ListOpenBills(ctx context.Context, storeID int64) ([]domain.Bill, error)
	// ListBillsByRange returns bills whose start time falls in [from, to).
	// storeID 0 matches every store.
	ListBillsByRange(ctx context.Context, storeID int64, from time.Time, to time.Time) ([]domain.Bill, error)
	CloseBill(ctx context.Context, billID string, method domain.PaymentMethod, closedBy string, at time.Time) (*domain.Bill, error)
	// CancelBill closes the bill as cancelled, cancels its live orders with the
	// given reason and deactivates its cast assignments in one step.
	CancelBill(ctx context.Context, billID string, cancelledBy string, reason string, at time.Time) (*domain.Bill, error)
	SetPaymentMethod(ctx context.Context, billID string, method domain.PaymentMethod) (*domain.Bill, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrdersByBills(ctx context.Context, billIDs []string) ([]domain.Order, error)
	// ListCastOrders returns non-cancelled orders attributed to the cast member
	// created in [from, to), across every store.
	ListCastOrders(ctx context.Context, castID string, from time.Time, to time.Time) ([]domain.CastOrder, error)
	CancelOrder(ctx context.Context, orderID string, cancelledBy string, reason string, at time.Time) (*domain.Order, error)

	// CreateExtensionOrder stores an order that advances the (bill, cast)
	// designation counter, adds one to the counter and applies the rule to the
	// pair and the bill in one step. On error nothing is written. Only a free
	// bill changes its seating tier.
	CreateExtensionOrder(ctx context.Context, order domain.Order, rule DesignationRule, at time.Time) (*ExtensionOutcome, error)
	ListDesignations(ctx context.Context, billID string) ([]domain.BillDesignation, error)

	CreateAdjustment(ctx context.Context, adjustment domain.PriceAdjustment) (*domain.PriceAdjustment, error)
	ListAdjustmentsByBills(ctx context.Context, billIDs []string) ([]domain.PriceAdjustment, error)

	CreateAssignment(ctx context.Context, assignment domain.CastAssignment) (*domain.CastAssignment, error)
	DeactivateAssignment(ctx context.Context, billID string, castID string, at time.Time) (*domain.CastAssignment, error)
	ListAssignments(ctx context.Context, billID string, activeOnly bool) ([]domain.CastAssignment, error)

	CreateCastMember(ctx context.Context, member domain.CastMember) (*domain.CastMember, error)
	GetCastMember(ctx context.Context, castID string) (*domain.CastMember, error)
	GetCastMemberByUsername(ctx context.Context, username string) (*domain.CastMember, error)
	ListCastMembers(ctx context.Context, includeInactive bool) ([]domain.CastMember, error)
	UpdateCastMember(ctx context.Context, member domain.CastMember) (*domain.CastMember, error)

	CreateShift(ctx context.Context, shift domain.CastShift) (*domain.CastShift, error)
	GetShift(ctx context.Context, shiftID string) (*domain.CastShift, error)
	GetOpenShift(ctx context.Context, castID string) (*domain.CastShift, error)
	CloseShift(ctx context.Context, shiftID string, at time.Time) (*domain.CastShift, error)
	// ReviewShift records a decision on the clock_in or clock_out edge of a shift
	// that is still pending on that edge.
	ReviewShift(ctx context.Context, shiftID string, edge string, decision domain.ApprovalStatus, reviewedBy string, at time.Time) (*domain.CastShift, error)
	SetLatePickup(ctx context.Context, shiftID string, start time.Time) (*domain.CastShift, error)
	ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.CastShift, error)
	ListPendingShifts(ctx context.Context, storeID int64) ([]domain.CastShift, error)

	ListSettings(ctx context.Context) ([]domain.StoreSetting, error)
	UpsertSetting(ctx context.Context, setting domain.StoreSetting) (*domain.StoreSetting, error)

	UpsertDailyReport(ctx context.Context, snapshot domain.DailyReportSnapshot) (*domain.DailyReportSnapshot, error)
	GetDailyReportSnapshot(ctx context.Context, storeID int64, businessDate string) (*domain.DailyReportSnapshot, error)
	UpsertCastDailyEarnings(ctx context.Context, rows []domain.CastDailyEarnings) error
	ListCastDailyEarnings(ctx context.Context, businessDate string) ([]domain.CastDailyEarnings, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID int64, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// DesignationRule receives the (bill, cast) pair right after its counter moved
// and the bill's current tier. It returns whether the pair becomes designated
// and the tier the bill should hold afterwards.
type DesignationRule func(designation domain.BillDesignation, tier domain.SeatingTier) (markDesignated bool, tierAfter domain.SeatingTier)

// ExtensionOutcome reports what CreateExtensionOrder changed.
type ExtensionOutcome struct {
	Order       domain.Order
	Designation domain.BillDesignation
	// Marked is true when this call flipped the pair to designated.
	Marked     bool
	TierBefore domain.SeatingTier
	TierAfter  domain.SeatingTier
}

func (o ExtensionOutcome) Upgraded() bool {
	return o.TierAfter != o.TierBefore
}

const (
	ShiftEdgeClockIn  = "clock_in"
	ShiftEdgeClockOut = "clock_out"
)
