package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/logging"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	stores          []domain.Store
	tables          map[string]domain.FloorTable
	products        map[string]domain.Product
	priceHistory    map[string][]domain.ProductPriceHistory
	bills           map[string]domain.Bill
	billByToken     map[string]string
	openBillByTable map[string]string
	orders          map[string]domain.Order
	ordersByBill    map[string][]string
	designations    map[string]domain.BillDesignation
	adjustments     map[string][]domain.PriceAdjustment
	assignments     map[string][]domain.CastAssignment
	castMembers     map[string]domain.CastMember
	shifts          map[string]domain.CastShift
	openShiftByCast map[string]string
	settings        map[string]domain.StoreSetting
	reportSnapshots map[string]domain.DailyReportSnapshot
	castEarnings    map[string]domain.CastDailyEarnings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial staff accounts for dev/demo mode. Passwords
// come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; when unset the dev
// defaults are used with a warning. PostgreSQL deployments never use these.
func seedUsers(logger *logrus.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.WithField("module", "memory-store").Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  mustHash(u.password),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func seedCast() map[string]domain.CastMember {
	pin := envOr("SEED_CAST_PIN", "4826")
	pinHash := mustHash(pin)
	now := time.Now().UTC()

	members := []domain.CastMember{
		{ID: "cast-akari", Name: "あかり", Username: "akari", HourlyRate: 4000, TransportFee: 0},
		{ID: "cast-mio", Name: "みお", Username: "mio", HourlyRate: 3500, TransportFee: 500, ReferredBy: "cast-akari"},
		{ID: "cast-yuna", Name: "ゆな", Username: "yuna", HourlyRate: 4000, TransportFee: 1000},
	}
	result := make(map[string]domain.CastMember, len(members))
	for _, m := range members {
		m.PINHash = pinHash
		m.Active = true
		m.CreatedAt = now
		result[m.ID] = m
	}
	return result
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{ID: "prd-set-40", Name: "セット40分", Category: domain.CategorySet, Price: 3500, TaxApplicable: true, SortOrder: 1},
		{ID: "prd-set-60", Name: "セット60分", Category: domain.CategorySet, Price: 5000, TaxApplicable: true, SortOrder: 2},
		{ID: "prd-set-90", Name: "セット90分", Category: domain.CategorySet, Price: 7000, TaxApplicable: true, SortOrder: 3},
		{ID: "prd-ext-20", Name: "延長20分", Category: domain.CategoryExtension, Price: 2500, TaxApplicable: true, ExtensionMinutes: 20, SortOrder: 10},
		{ID: "prd-ext-40", Name: "延長40分", Category: domain.CategoryExtension, Price: 5000, TaxApplicable: true, ExtensionMinutes: 40, SortOrder: 11},
		{ID: "prd-ext-inhouse-20", Name: "場内延長20分", Category: domain.CategoryExtension, Price: 3000, TaxApplicable: true, BackFree: 500, BackDesignated: 500, ExtensionMinutes: 20, ExtensionTier: domain.ExtensionTierInhouse, SortOrder: 12},
		{ID: "prd-ext-designated-20", Name: "本指名延長20分", Category: domain.CategoryExtension, Price: 3500, TaxApplicable: true, BackFree: 1000, BackDesignated: 1000, ExtensionMinutes: 20, ExtensionTier: domain.ExtensionTierDesignated, SortOrder: 13},
		{ID: "prd-ext-designated-40", Name: "本指名延長40分", Category: domain.CategoryExtension, Price: 6500, TaxApplicable: true, BackFree: 2000, BackDesignated: 2000, ExtensionMinutes: 40, ExtensionTier: domain.ExtensionTierDesignated, SortOrder: 14},
		{ID: "prd-nom-designated", Name: "本指名料", Category: domain.CategoryNomination, Price: 3000, TaxApplicable: true, BackFree: 1000, BackDesignated: 1000, SortOrder: 20},
		{ID: "prd-nom-inhouse", Name: "場内指名料", Category: domain.CategoryNomination, Price: 2000, TaxApplicable: true, BackFree: 500, BackDesignated: 500, SortOrder: 21},
		{ID: "prd-companion", Name: "同伴料", Category: domain.CategoryCompanion, Price: 3000, TaxApplicable: true, BackFree: 1500, BackDesignated: 1500, SortOrder: 30},
		{ID: "prd-drink-s", Name: "キャストドリンクS", Category: domain.CategoryDrinks, Price: 1000, TaxApplicable: true, BackFree: 200, BackDesignated: 200, DrinkUnits: 1, SortOrder: 40},
		{ID: "prd-drink-m", Name: "キャストドリンクM", Category: domain.CategoryDrinks, Price: 1500, TaxApplicable: true, BackFree: 300, BackDesignated: 300, DrinkUnits: 2, SortOrder: 41},
		{ID: "prd-drink-l", Name: "キャストドリンクL", Category: domain.CategoryDrinks, Price: 2000, TaxApplicable: true, BackFree: 400, BackDesignated: 400, DrinkUnits: 3, SortOrder: 42},
		{ID: "prd-drink-shot", Name: "ショット", Category: domain.CategoryDrinks, Price: 1500, TaxApplicable: true, BackFree: 300, BackDesignated: 300, DrinkUnits: 2, SortOrder: 43},
		{ID: "prd-drink-guest", Name: "ソフトドリンク", Category: domain.CategoryDrinks, Price: 500, TaxApplicable: false, SortOrder: 44},
		{ID: "prd-bottle-moet", Name: "モエ・エ・シャンドン", Category: domain.CategoryBottles, Price: 30000, TaxApplicable: true, BackFree: 3000, BackDesignated: 4500, Points: 8, SortOrder: 50},
		{ID: "prd-bottle-veuve", Name: "ヴーヴ・クリコ", Category: domain.CategoryBottles, Price: 40000, TaxApplicable: true, BackFree: 4000, BackDesignated: 6000, Points: 10, SortOrder: 51},
	}
}

func seedTables() []domain.FloorTable {
	tables := make([]domain.FloorTable, 0, 14)
	for _, label := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "B1", "B2", "B3"} {
		tables = append(tables, domain.FloorTable{ID: "s1-" + strings.ToLower(label), StoreID: 1, Label: label, Seats: 2, Active: true})
	}
	for _, label := range []string{"C1", "C2", "C3", "C4", "C5"} {
		tables = append(tables, domain.FloorTable{ID: "s2-" + strings.ToLower(label), StoreID: 2, Label: label, Seats: 2, Active: true})
	}
	return tables
}

func mustHash(secret string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("memory-store: hash seed secret: %v", err))
	}
	return string(hash)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded builds a demo store without logging.
func NewSeeded() *Store {
	return NewSeededWithLogger(logging.Discard())
}

// NewSeededWithLogger builds a demo store; seeding warnings go to logger.
func NewSeededWithLogger(logger *logrus.Logger) *Store {
	productMap := make(map[string]domain.Product)
	for _, p := range seedProducts() {
		p.Active = true
		productMap[p.ID] = p
	}
	tableMap := make(map[string]domain.FloorTable)
	for _, t := range seedTables() {
		tableMap[t.ID] = t
	}

	return &Store{
		stores:          []domain.Store{{ID: 1, Name: "本店", Active: true}, {ID: 2, Name: "2号店", Active: true}},
		tables:          tableMap,
		products:        productMap,
		priceHistory:    make(map[string][]domain.ProductPriceHistory),
		bills:           make(map[string]domain.Bill),
		billByToken:     make(map[string]string),
		openBillByTable: make(map[string]string),
		orders:          make(map[string]domain.Order),
		ordersByBill:    make(map[string][]string),
		designations:    make(map[string]domain.BillDesignation),
		adjustments:     make(map[string][]domain.PriceAdjustment),
		assignments:     make(map[string][]domain.CastAssignment),
		castMembers:     seedCast(),
		shifts:          make(map[string]domain.CastShift),
		openShiftByCast: make(map[string]string),
		settings:        make(map[string]domain.StoreSetting),
		reportSnapshots: make(map[string]domain.DailyReportSnapshot),
		castEarnings:    make(map[string]domain.CastDailyEarnings),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(logger),
	}
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.stores), nil
}

func (s *Store) ListTables(_ context.Context, storeID int64) ([]domain.FloorTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]domain.FloorTable, 0, len(s.tables))
	for _, t := range s.tables {
		if !t.Active || (storeID != 0 && t.StoreID != storeID) {
			continue
		}
		tables = append(tables, t)
	}
	slices.SortFunc(tables, func(a, b domain.FloorTable) int {
		if a.StoreID != b.StoreID {
			return cmpInt64(a.StoreID, b.StoreID)
		}
		return strings.Compare(a.Label, b.Label)
	})
	return tables, nil
}

func (s *Store) GetTable(_ context.Context, tableID string) (*domain.FloorTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.tables[tableID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &table, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || !product.Category.Valid() || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistory[entry.ProductID] = append(s.priceHistory[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.priceHistory[productID])
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		return newestFirst(a.ChangedAt, b.ChangedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	if result == nil {
		result = []domain.ProductPriceHistory{}
	}
	return result, nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill, assignments []domain.CastAssignment) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[bill.TableID]
	if !ok || !table.Active {
		return nil, store.ErrNotFound
	}
	if bill.ReadToken == "" || bill.StartTime.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if _, open := s.openBillByTable[bill.TableID]; open {
		return nil, store.ErrConflict
	}
	if _, taken := s.billByToken[bill.ReadToken]; taken {
		return nil, store.ErrConflict
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	bill.StoreID = table.StoreID
	bill.Status = domain.BillOpen
	bill.PaymentMethod = ""
	bill.CloseTime = nil

	s.bills[bill.ID] = bill
	s.billByToken[bill.ReadToken] = bill.ID
	s.openBillByTable[bill.TableID] = bill.ID
	for _, a := range assignments {
		if a.ID == "" {
			a.ID = xid.New("asg")
		}
		a.BillID = bill.ID
		a.Active = true
		s.assignments[bill.ID] = append(s.assignments[bill.ID], a)
	}
	created := bill
	return &created, nil
}

func (s *Store) GetBill(_ context.Context, billID string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.bills[billID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &bill, nil
}

func (s *Store) GetBillByToken(_ context.Context, token string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	billID, ok := s.billByToken[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	bill := s.bills[billID]
	return &bill, nil
}

func (s *Store) GetOpenBillByTable(_ context.Context, tableID string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	billID, ok := s.openBillByTable[tableID]
	if !ok {
		return nil, store.ErrNotFound
	}
	bill := s.bills[billID]
	return &bill, nil
}

func (s *Store) ListOpenBills(_ context.Context, storeID int64) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0, len(s.openBillByTable))
	for _, billID := range s.openBillByTable {
		bill := s.bills[billID]
		if storeID != 0 && bill.StoreID != storeID {
			continue
		}
		bills = append(bills, bill)
	}
	sortBillsByStart(bills)
	return bills, nil
}

func (s *Store) ListBillsByRange(_ context.Context, storeID int64, from time.Time, to time.Time) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0, 32)
	for _, bill := range s.bills {
		if storeID != 0 && bill.StoreID != storeID {
			continue
		}
		if bill.StartTime.Before(from) || !bill.StartTime.Before(to) {
			continue
		}
		bills = append(bills, bill)
	}
	sortBillsByStart(bills)
	return bills, nil
}

func (s *Store) CloseBill(_ context.Context, billID string, method domain.PaymentMethod, closedBy string, at time.Time) (*domain.Bill, error) {
	if !method.Settleable() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[billID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != domain.BillOpen {
		return nil, store.ErrConflict
	}
	bill.Status = domain.BillClosed
	bill.PaymentMethod = method
	bill.ClosedBy = closedBy
	bill.CloseTime = &at

	s.bills[billID] = bill
	delete(s.openBillByTable, bill.TableID)
	closed := bill
	return &closed, nil
}

func (s *Store) CancelBill(_ context.Context, billID string, cancelledBy string, reason string, at time.Time) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[billID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != domain.BillOpen {
		return nil, store.ErrConflict
	}
	bill.Status = domain.BillClosed
	bill.PaymentMethod = domain.PaymentCancelled
	bill.ClosedBy = cancelledBy
	bill.CloseTime = &at
	s.bills[billID] = bill
	delete(s.openBillByTable, bill.TableID)

	for _, orderID := range s.ordersByBill[billID] {
		order := s.orders[orderID]
		if order.IsCancelled {
			continue
		}
		order.IsCancelled = true
		order.CancelledAt = &at
		order.CancelledBy = cancelledBy
		order.CancelReason = reason
		s.orders[orderID] = order
	}

	assignments := s.assignments[billID]
	for i := range assignments {
		if assignments[i].Active {
			assignments[i].Active = false
			assignments[i].RemovedAt = &at
		}
	}

	cancelled := bill
	return &cancelled, nil
}

func (s *Store) SetPaymentMethod(_ context.Context, billID string, method domain.PaymentMethod) (*domain.Bill, error) {
	if !method.Settleable() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[billID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != domain.BillOpen {
		return nil, store.ErrConflict
	}
	bill.PaymentMethod = method
	s.bills[billID] = bill
	updated := bill
	return &updated, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.Quantity < 1 || order.UnitPrice < 0 || order.ProductID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.openBillLocked(order.BillID); err != nil {
		return nil, err
	}
	created := s.putOrderLocked(order)
	return &created, nil
}

func (s *Store) CreateExtensionOrder(_ context.Context, order domain.Order, rule store.DesignationRule, at time.Time) (*store.ExtensionOutcome, error) {
	if order.Quantity < 1 || order.UnitPrice < 0 || order.ProductID == "" || order.CastID == "" || rule == nil {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.openBillLocked(order.BillID)
	if err != nil {
		return nil, err
	}

	key := designationKey(order.BillID, order.CastID)
	designation, ok := s.designations[key]
	if !ok {
		designation = domain.BillDesignation{BillID: order.BillID, CastID: order.CastID}
	}
	designation.ExtensionCount++

	outcome := store.ExtensionOutcome{TierBefore: bill.SeatingTier, TierAfter: bill.SeatingTier}
	mark, tier := rule(designation, bill.SeatingTier)
	if mark && !designation.IsDesignated {
		designation.IsDesignated = true
		designation.DesignatedAt = &at
		outcome.Marked = true
	}
	if bill.SeatingTier == domain.SeatingFree && tier.Valid() && tier != bill.SeatingTier {
		bill.SeatingTier = tier
		s.bills[bill.ID] = bill
		outcome.TierAfter = tier
	}
	s.designations[key] = designation
	outcome.Order = s.putOrderLocked(order)
	outcome.Designation = designation
	return &outcome, nil
}

func (s *Store) openBillLocked(billID string) (domain.Bill, error) {
	bill, ok := s.bills[billID]
	if !ok {
		return domain.Bill{}, store.ErrNotFound
	}
	if bill.Status != domain.BillOpen {
		return domain.Bill{}, store.ErrConflict
	}
	return bill, nil
}

func (s *Store) putOrderLocked(order domain.Order) domain.Order {
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.IsCancelled = false
	s.orders[order.ID] = order
	s.ordersByBill[order.BillID] = append(s.ordersByBill[order.BillID], order.ID)
	return order
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &order, nil
}

func (s *Store) ListOrdersByBills(_ context.Context, billIDs []string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(billIDs)*4)
	for _, billID := range billIDs {
		for _, orderID := range s.ordersByBill[billID] {
			orders = append(orders, s.orders[orderID])
		}
	}
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return orders, nil
}

func (s *Store) ListCastOrders(_ context.Context, castID string, from time.Time, to time.Time) ([]domain.CastOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CastOrder, 0, 16)
	for _, order := range s.orders {
		if order.CastID != castID || order.IsCancelled {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		bill := s.bills[order.BillID]
		consumers := 0
		for _, a := range s.assignments[order.BillID] {
			if a.Active {
				consumers++
			}
		}
		result = append(result, domain.CastOrder{Order: order, StoreID: bill.StoreID, Consumers: consumers})
	}
	slices.SortFunc(result, func(a, b domain.CastOrder) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) CancelOrder(_ context.Context, orderID string, cancelledBy string, reason string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.IsCancelled || s.bills[order.BillID].Status != domain.BillOpen {
		return nil, store.ErrConflict
	}
	order.IsCancelled = true
	order.CancelledAt = &at
	order.CancelledBy = cancelledBy
	order.CancelReason = reason
	s.orders[orderID] = order
	cancelled := order
	return &cancelled, nil
}

func (s *Store) ListDesignations(_ context.Context, billID string) ([]domain.BillDesignation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BillDesignation, 0, 4)
	for _, d := range s.designations {
		if d.BillID == billID {
			result = append(result, d)
		}
	}
	slices.SortFunc(result, func(a, b domain.BillDesignation) int {
		return strings.Compare(a.CastID, b.CastID)
	})
	return result, nil
}

func (s *Store) CreateAdjustment(_ context.Context, adjustment domain.PriceAdjustment) (*domain.PriceAdjustment, error) {
	if strings.TrimSpace(adjustment.Reason) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[adjustment.BillID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.IsCancelled() {
		return nil, store.ErrConflict
	}
	if adjustment.ID == "" {
		adjustment.ID = xid.New("adj")
	}
	if adjustment.CreatedAt.IsZero() {
		adjustment.CreatedAt = time.Now().UTC()
	}
	s.adjustments[adjustment.BillID] = append(s.adjustments[adjustment.BillID], adjustment)
	created := adjustment
	return &created, nil
}

func (s *Store) ListAdjustmentsByBills(_ context.Context, billIDs []string) ([]domain.PriceAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PriceAdjustment, 0, len(billIDs))
	for _, billID := range billIDs {
		result = append(result, s.adjustments[billID]...)
	}
	return result, nil
}

func (s *Store) CreateAssignment(_ context.Context, assignment domain.CastAssignment) (*domain.CastAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[assignment.BillID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.castMembers[assignment.CastID]; !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != domain.BillOpen {
		return nil, store.ErrConflict
	}
	for _, existing := range s.assignments[assignment.BillID] {
		if existing.Active && existing.CastID == assignment.CastID {
			return nil, store.ErrConflict
		}
	}
	if assignment.ID == "" {
		assignment.ID = xid.New("asg")
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	assignment.Active = true
	assignment.RemovedAt = nil
	s.assignments[assignment.BillID] = append(s.assignments[assignment.BillID], assignment)
	created := assignment
	return &created, nil
}

func (s *Store) DeactivateAssignment(_ context.Context, billID string, castID string, at time.Time) (*domain.CastAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignments := s.assignments[billID]
	for i := range assignments {
		if assignments[i].Active && assignments[i].CastID == castID {
			assignments[i].Active = false
			assignments[i].RemovedAt = &at
			removed := assignments[i]
			return &removed, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListAssignments(_ context.Context, billID string, activeOnly bool) ([]domain.CastAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CastAssignment, 0, len(s.assignments[billID]))
	for _, a := range s.assignments[billID] {
		if activeOnly && !a.Active {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

func (s *Store) CreateCastMember(_ context.Context, member domain.CastMember) (*domain.CastMember, error) {
	member.Username = strings.ToLower(strings.TrimSpace(member.Username))
	if member.Username == "" || strings.TrimSpace(member.Name) == "" || member.PINHash == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.castMembers {
		if existing.Username == member.Username {
			return nil, store.ErrConflict
		}
	}
	if member.ReferredBy != "" {
		if _, ok := s.castMembers[member.ReferredBy]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if member.ID == "" {
		member.ID = xid.New("cast")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	member.Active = true
	s.castMembers[member.ID] = member
	created := member
	return &created, nil
}

func (s *Store) GetCastMember(_ context.Context, castID string) (*domain.CastMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.castMembers[castID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (s *Store) GetCastMemberByUsername(_ context.Context, username string) (*domain.CastMember, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, member := range s.castMembers {
		if member.Username == username {
			found := member
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCastMembers(_ context.Context, includeInactive bool) ([]domain.CastMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CastMember, 0, len(s.castMembers))
	for _, member := range s.castMembers {
		if !includeInactive && !member.Active {
			continue
		}
		result = append(result, member)
	}
	slices.SortFunc(result, func(a, b domain.CastMember) int {
		return strings.Compare(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateCastMember(_ context.Context, member domain.CastMember) (*domain.CastMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.castMembers[member.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if member.ReferredBy == member.ID {
		return nil, store.ErrInvalidInput
	}
	if member.ReferredBy != "" {
		if _, ok := s.castMembers[member.ReferredBy]; !ok {
			return nil, store.ErrNotFound
		}
	}
	member.Username = existing.Username
	member.CreatedAt = existing.CreatedAt
	s.castMembers[member.ID] = member
	updated := member
	return &updated, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.CastShift) (*domain.CastShift, error) {
	if shift.CastID == "" || shift.StoreID < 1 || shift.ClockIn.IsZero() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.castMembers[shift.CastID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, open := s.openShiftByCast[shift.CastID]; open {
		return nil, store.ErrConflict
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	shift.ClockOut = nil
	shift.ClockInStatus = domain.ApprovalPending
	shift.ClockOutStatus = ""

	s.shifts[shift.ID] = shift
	s.openShiftByCast[shift.CastID] = shift.ID
	created := shift
	return &created, nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*domain.CastShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) GetOpenShift(_ context.Context, castID string) (*domain.CastShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.openShiftByCast[castID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shifts[shiftID]
	return &shift, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, at time.Time) (*domain.CastShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.ClockOut != nil {
		return nil, store.ErrConflict
	}
	if at.Before(shift.ClockIn) {
		return nil, store.ErrInvalidInput
	}
	shift.ClockOut = &at
	shift.ClockOutStatus = domain.ApprovalPending
	s.shifts[shiftID] = shift
	delete(s.openShiftByCast, shift.CastID)
	closed := shift
	return &closed, nil
}

func (s *Store) ReviewShift(_ context.Context, shiftID string, edge string, decision domain.ApprovalStatus, reviewedBy string, at time.Time) (*domain.CastShift, error) {
	if decision != domain.ApprovalApproved && decision != domain.ApprovalRejected {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	switch edge {
	case store.ShiftEdgeClockIn:
		if shift.ClockInStatus != domain.ApprovalPending {
			return nil, store.ErrConflict
		}
		shift.ClockInStatus = decision
		shift.ClockInReviewedBy = reviewedBy
		shift.ClockInReviewedAt = &at
	case store.ShiftEdgeClockOut:
		if shift.ClockOut == nil || shift.ClockOutStatus != domain.ApprovalPending {
			return nil, store.ErrConflict
		}
		shift.ClockOutStatus = decision
		shift.ClockOutReviewedBy = reviewedBy
		shift.ClockOutReviewedAt = &at
	default:
		return nil, store.ErrInvalidInput
	}
	s.shifts[shiftID] = shift
	reviewed := shift
	return &reviewed, nil
}

func (s *Store) SetLatePickup(_ context.Context, shiftID string, start time.Time) (*domain.CastShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift.IsLatePickup = true
	shift.LatePickupStart = &start
	s.shifts[shiftID] = shift
	updated := shift
	return &updated, nil
}

func (s *Store) ListShifts(_ context.Context, filter domain.ShiftFilter) ([]domain.CastShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CastShift, 0, 16)
	for _, shift := range s.shifts {
		if filter.StoreID != 0 && shift.StoreID != filter.StoreID {
			continue
		}
		if filter.CastID != "" && shift.CastID != filter.CastID {
			continue
		}
		if !filter.From.IsZero() && shift.ClockIn.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !shift.ClockIn.Before(filter.To) {
			continue
		}
		result = append(result, shift)
	}
	sortShifts(result)
	return result, nil
}

func (s *Store) ListPendingShifts(_ context.Context, storeID int64) ([]domain.CastShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CastShift, 0, 8)
	for _, shift := range s.shifts {
		if storeID != 0 && shift.StoreID != storeID {
			continue
		}
		if shift.ClockInStatus == domain.ApprovalPending || shift.ClockOutStatus == domain.ApprovalPending {
			result = append(result, shift)
		}
	}
	sortShifts(result)
	return result, nil
}

func (s *Store) ListSettings(_ context.Context) ([]domain.StoreSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StoreSetting, 0, len(s.settings))
	for _, setting := range s.settings {
		result = append(result, setting)
	}
	slices.SortFunc(result, func(a, b domain.StoreSetting) int {
		return strings.Compare(a.Key, b.Key)
	})
	return result, nil
}

func (s *Store) UpsertSetting(_ context.Context, setting domain.StoreSetting) (*domain.StoreSetting, error) {
	if setting.Key == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now().UTC()
	}
	s.settings[setting.Key] = setting
	saved := setting
	return &saved, nil
}

func (s *Store) UpsertDailyReport(_ context.Context, snapshot domain.DailyReportSnapshot) (*domain.DailyReportSnapshot, error) {
	if snapshot.StoreID < 1 || snapshot.BusinessDate == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.HourlyEntries = cloneCounts(snapshot.HourlyEntries)
	s.reportSnapshots[snapshotKey(snapshot.StoreID, snapshot.BusinessDate)] = snapshot
	saved := snapshot
	saved.HourlyEntries = cloneCounts(snapshot.HourlyEntries)
	return &saved, nil
}

func (s *Store) GetDailyReportSnapshot(_ context.Context, storeID int64, businessDate string) (*domain.DailyReportSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.reportSnapshots[snapshotKey(storeID, businessDate)]
	if !ok {
		return nil, store.ErrNotFound
	}
	snapshot.HourlyEntries = cloneCounts(snapshot.HourlyEntries)
	return &snapshot, nil
}

func (s *Store) UpsertCastDailyEarnings(_ context.Context, rows []domain.CastDailyEarnings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if row.CastID == "" || row.BusinessDate == "" {
			return store.ErrInvalidInput
		}
	}
	for _, row := range rows {
		s.castEarnings[row.CastID+"|"+row.BusinessDate] = row
	}
	return nil
}

func (s *Store) ListCastDailyEarnings(_ context.Context, businessDate string) ([]domain.CastDailyEarnings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CastDailyEarnings, 0, 8)
	for _, row := range s.castEarnings {
		if row.BusinessDate == businessDate {
			result = append(result, row)
		}
	}
	slices.SortFunc(result, func(a, b domain.CastDailyEarnings) int {
		return strings.Compare(a.CastID, b.CastID)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID int64, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != 0 && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func designationKey(billID string, castID string) string {
	return billID + "|" + castID
}

func snapshotKey(storeID int64, businessDate string) string {
	return strconv.FormatInt(storeID, 10) + "|" + businessDate
}

func cloneCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sortBillsByStart(bills []domain.Bill) {
	slices.SortFunc(bills, func(a, b domain.Bill) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortShifts(shifts []domain.CastShift) {
	slices.SortFunc(shifts, func(a, b domain.CastShift) int {
		if c := a.ClockIn.Compare(b.ClockIn); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func newestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if a.Equal(b) {
		return strings.Compare(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
