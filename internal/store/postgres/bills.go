package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

const billColumns = `id, store_id, table_id, status, seating_tier, start_time, base_minutes,
	COALESCE(payment_method, ''), read_token, COALESCE(notes, ''), opened_by, COALESCE(closed_by, ''), close_time`

func scanBill(row rowScanner) (domain.Bill, error) {
	var (
		bill      domain.Bill
		closeTime sql.NullTime
	)
	err := row.Scan(&bill.ID, &bill.StoreID, &bill.TableID, &bill.Status, &bill.SeatingTier, &bill.StartTime, &bill.BaseMinutes,
		&bill.PaymentMethod, &bill.ReadToken, &bill.Notes, &bill.OpenedBy, &bill.ClosedBy, &closeTime)
	if err != nil {
		return domain.Bill{}, err
	}
	bill.StartTime = bill.StartTime.UTC()
	bill.CloseTime = timePtr(closeTime)
	return bill, nil
}

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 16)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill, assignments []domain.CastAssignment) (*domain.Bill, error) {
	if bill.ReadToken == "" || bill.StartTime.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	bill.Status = domain.BillOpen
	bill.PaymentMethod = ""
	bill.CloseTime = nil

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		SELECT store_id
		FROM floor_tables
		WHERE id = $1 AND active = true
	`, bill.TableID).Scan(&bill.StoreID)
	if err != nil {
		return nil, notFound(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, store_id, table_id, status, seating_tier, start_time, base_minutes, read_token, notes, opened_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, bill.ID, bill.StoreID, bill.TableID, bill.Status, bill.SeatingTier, bill.StartTime, bill.BaseMinutes,
		bill.ReadToken, nullIfEmpty(bill.Notes), bill.OpenedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, a := range assignments {
		if a.ID == "" {
			a.ID = xid.New("asg")
		}
		if a.AssignedAt.IsZero() {
			a.AssignedAt = bill.StartTime
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cast_assignments (id, bill_id, cast_id, active, assigned_by, assigned_at)
			VALUES ($1,$2,$3,true,$4,$5)
		`, a.ID, bill.ID, a.CastID, a.AssignedBy, a.AssignedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := bill
	return &created, nil
}

func (s *Store) GetBill(ctx context.Context, billID string) (*domain.Bill, error) {
	bill, err := scanBill(s.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, billID))
	if err != nil {
		return nil, notFound(err)
	}
	return &bill, nil
}

func (s *Store) GetBillByToken(ctx context.Context, token string) (*domain.Bill, error) {
	bill, err := scanBill(s.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE read_token = $1`, token))
	if err != nil {
		return nil, notFound(err)
	}
	return &bill, nil
}

func (s *Store) GetOpenBillByTable(ctx context.Context, tableID string) (*domain.Bill, error) {
	bill, err := scanBill(s.db.QueryRowContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE table_id = $1 AND status = 'open'
	`, tableID))
	if err != nil {
		return nil, notFound(err)
	}
	return &bill, nil
}

func (s *Store) ListOpenBills(ctx context.Context, storeID int64) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE status = 'open' AND ($1::bigint = 0 OR store_id = $1)
		ORDER BY start_time ASC, id ASC
	`, storeID)
}

func (s *Store) ListBillsByRange(ctx context.Context, storeID int64, from time.Time, to time.Time) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE ($1::bigint = 0 OR store_id = $1) AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC, id ASC
	`, storeID, from, to)
}

// lockOpenBill loads the bill row for update and fails with ErrConflict when
// it is not open anymore.
func lockOpenBill(ctx context.Context, tx *sql.Tx, billID string) error {
	var status domain.BillStatus
	err := tx.QueryRowContext(ctx, `
		SELECT status
		FROM bills
		WHERE id = $1
		FOR UPDATE
	`, billID).Scan(&status)
	if err != nil {
		return notFound(err)
	}
	if status != domain.BillOpen {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) CloseBill(ctx context.Context, billID string, method domain.PaymentMethod, closedBy string, at time.Time) (*domain.Bill, error) {
	if !method.Settleable() {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenBill(ctx, tx, billID); err != nil {
		return nil, err
	}
	bill, err := scanBill(tx.QueryRowContext(ctx, `
		UPDATE bills
		SET status = 'closed', payment_method = $2, closed_by = $3, close_time = $4
		WHERE id = $1
		RETURNING `+billColumns, billID, method, closedBy, at))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &bill, nil
}

func (s *Store) CancelBill(ctx context.Context, billID string, cancelledBy string, reason string, at time.Time) (*domain.Bill, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenBill(ctx, tx, billID); err != nil {
		return nil, err
	}
	bill, err := scanBill(tx.QueryRowContext(ctx, `
		UPDATE bills
		SET status = 'closed', payment_method = $2, closed_by = $3, close_time = $4
		WHERE id = $1
		RETURNING `+billColumns, billID, domain.PaymentCancelled, cancelledBy, at))
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET is_cancelled = true, cancelled_at = $2, cancelled_by = $3, cancel_reason = $4
		WHERE bill_id = $1 AND is_cancelled = false
	`, billID, at, cancelledBy, reason)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cast_assignments
		SET active = false, removed_at = $2
		WHERE bill_id = $1 AND active = true
	`, billID, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &bill, nil
}

func (s *Store) SetPaymentMethod(ctx context.Context, billID string, method domain.PaymentMethod) (*domain.Bill, error) {
	if !method.Settleable() {
		return nil, store.ErrInvalidInput
	}

	bill, err := scanBill(s.db.QueryRowContext(ctx, `
		UPDATE bills
		SET payment_method = $2
		WHERE id = $1 AND status = 'open'
		RETURNING `+billColumns, billID, method))
	if err == nil {
		return &bill, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, getErr := s.GetBill(ctx, billID); getErr != nil {
		return nil, getErr
	}
	return nil, store.ErrConflict
}

const orderColumns = `o.id, o.bill_id, o.product_id, o.product_name, o.category, COALESCE(o.cast_id, ''), o.quantity,
	o.unit_price, o.tax_applicable, o.back_amount, o.points_amount, o.drink_units, o.extension_minutes, o.extension_tier,
	o.created_by, o.created_at, o.is_cancelled, o.cancelled_at, COALESCE(o.cancelled_by, ''), COALESCE(o.cancel_reason, '')`

func scanOrderInto(order *domain.Order, extra []any, row rowScanner) error {
	var cancelledAt sql.NullTime
	dest := []any{&order.ID, &order.BillID, &order.ProductID, &order.ProductName, &order.Category, &order.CastID, &order.Quantity,
		&order.UnitPrice, &order.TaxApplicable, &order.BackAmount, &order.PointsAmount, &order.DrinkUnits, &order.ExtensionMinutes,
		&order.ExtensionTier, &order.CreatedBy, &order.CreatedAt, &order.IsCancelled, &cancelledAt, &order.CancelledBy, &order.CancelReason}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.CancelledAt = timePtr(cancelledAt)
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.Quantity < 1 || order.UnitPrice < 0 || order.ProductID == "" {
		return nil, store.ErrInvalidInput
	}
	prepareOrder(&order)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status domain.BillStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM bills
		WHERE id = $1
		FOR SHARE
	`, order.BillID).Scan(&status)
	if err != nil {
		return nil, notFound(err)
	}
	if status != domain.BillOpen {
		return nil, store.ErrConflict
	}

	if err := insertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

func prepareOrder(order *domain.Order) {
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.IsCancelled = false
}

func insertOrder(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, bill_id, product_id, product_name, category, cast_id, quantity, unit_price, tax_applicable,
			back_amount, points_amount, drink_units, extension_minutes, extension_tier, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, order.ID, order.BillID, order.ProductID, order.ProductName, order.Category, nullIfEmpty(order.CastID), order.Quantity,
		order.UnitPrice, order.TaxApplicable, order.BackAmount, order.PointsAmount, order.DrinkUnits, order.ExtensionMinutes,
		order.ExtensionTier, order.CreatedBy, order.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// CreateExtensionOrder runs the order insert, the counter upsert, the
// designation mark and the seating upgrade in one transaction. The bill row
// lock orders concurrent extensions on the same bill, and read committed lets
// each waiter see the counter the previous one left.
func (s *Store) CreateExtensionOrder(ctx context.Context, order domain.Order, rule store.DesignationRule, at time.Time) (*store.ExtensionOutcome, error) {
	if order.Quantity < 1 || order.UnitPrice < 0 || order.ProductID == "" || order.CastID == "" || rule == nil {
		return nil, store.ErrInvalidInput
	}
	prepareOrder(&order)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		status domain.BillStatus
		tier   domain.SeatingTier
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, seating_tier
		FROM bills
		WHERE id = $1
		FOR UPDATE
	`, order.BillID).Scan(&status, &tier)
	if err != nil {
		return nil, notFound(err)
	}
	if status != domain.BillOpen {
		return nil, store.ErrConflict
	}

	if err := insertOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	designation, err := scanDesignation(tx.QueryRowContext(ctx, `
		INSERT INTO bill_designations (bill_id, cast_id, extension_count)
		VALUES ($1,$2,1)
		ON CONFLICT (bill_id, cast_id)
		DO UPDATE SET extension_count = bill_designations.extension_count + 1
		RETURNING bill_id, cast_id, extension_count, is_designated, designated_at
	`, order.BillID, order.CastID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	outcome := store.ExtensionOutcome{TierBefore: tier, TierAfter: tier}
	mark, tierAfter := rule(designation, tier)
	if mark && !designation.IsDesignated {
		_, err = tx.ExecContext(ctx, `
			UPDATE bill_designations
			SET is_designated = true, designated_at = $3
			WHERE bill_id = $1 AND cast_id = $2
		`, order.BillID, order.CastID, at)
		if err != nil {
			return nil, err
		}
		designation.IsDesignated = true
		designation.DesignatedAt = &at
		outcome.Marked = true
	}
	if tier == domain.SeatingFree && tierAfter.Valid() && tierAfter != tier {
		_, err = tx.ExecContext(ctx, `
			UPDATE bills
			SET seating_tier = $2
			WHERE id = $1
		`, order.BillID, tierAfter)
		if err != nil {
			return nil, err
		}
		outcome.TierAfter = tierAfter
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	outcome.Order = order
	outcome.Designation = designation
	return &outcome, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := scanOrderInto(&order, nil, s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, orderID))
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (s *Store) ListOrdersByBills(ctx context.Context, billIDs []string) ([]domain.Order, error) {
	if len(billIDs) == 0 {
		return []domain.Order{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.bill_id = ANY($1)
		ORDER BY o.created_at ASC, o.id ASC
	`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, len(billIDs)*4)
	for rows.Next() {
		var order domain.Order
		if err := scanOrderInto(&order, nil, rows); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *Store) ListCastOrders(ctx context.Context, castID string, from time.Time, to time.Time) ([]domain.CastOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`, b.store_id,
			(SELECT COUNT(*) FROM cast_assignments a WHERE a.bill_id = o.bill_id AND a.active = true)
		FROM orders o
		JOIN bills b ON b.id = o.bill_id
		WHERE o.cast_id = $1 AND o.is_cancelled = false AND o.created_at >= $2 AND o.created_at < $3
		ORDER BY o.created_at ASC, o.id ASC
	`, castID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CastOrder, 0, 16)
	for rows.Next() {
		var co domain.CastOrder
		if err := scanOrderInto(&co.Order, []any{&co.StoreID, &co.Consumers}, rows); err != nil {
			return nil, err
		}
		result = append(result, co)
	}
	return result, rows.Err()
}

func (s *Store) CancelOrder(ctx context.Context, orderID string, cancelledBy string, reason string, at time.Time) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		billID    string
		cancelled bool
	)
	err = tx.QueryRowContext(ctx, `
		SELECT bill_id, is_cancelled
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&billID, &cancelled)
	if err != nil {
		return nil, notFound(err)
	}
	if cancelled {
		return nil, store.ErrConflict
	}
	if err := lockOpenBill(ctx, tx, billID); err != nil {
		return nil, err
	}

	var order domain.Order
	err = scanOrderInto(&order, nil, tx.QueryRowContext(ctx, `
		UPDATE orders o
		SET is_cancelled = true, cancelled_at = $2, cancelled_by = $3, cancel_reason = $4
		WHERE o.id = $1
		RETURNING `+orderColumns, orderID, at, cancelledBy, reason))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

func scanDesignation(row rowScanner) (domain.BillDesignation, error) {
	var (
		d            domain.BillDesignation
		designatedAt sql.NullTime
	)
	if err := row.Scan(&d.BillID, &d.CastID, &d.ExtensionCount, &d.IsDesignated, &designatedAt); err != nil {
		return domain.BillDesignation{}, err
	}
	d.DesignatedAt = timePtr(designatedAt)
	return d, nil
}

func (s *Store) ListDesignations(ctx context.Context, billID string) ([]domain.BillDesignation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bill_id, cast_id, extension_count, is_designated, designated_at
		FROM bill_designations
		WHERE bill_id = $1
		ORDER BY cast_id ASC
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.BillDesignation, 0, 4)
	for rows.Next() {
		d, err := scanDesignation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) CreateAdjustment(ctx context.Context, adjustment domain.PriceAdjustment) (*domain.PriceAdjustment, error) {
	if strings.TrimSpace(adjustment.Reason) == "" {
		return nil, store.ErrInvalidInput
	}
	if adjustment.ID == "" {
		adjustment.ID = xid.New("adj")
	}
	if adjustment.CreatedAt.IsZero() {
		adjustment.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var method string
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(payment_method, '')
		FROM bills
		WHERE id = $1
		FOR SHARE
	`, adjustment.BillID).Scan(&method)
	if err != nil {
		return nil, notFound(err)
	}
	if domain.PaymentMethod(method) == domain.PaymentCancelled {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_adjustments (id, bill_id, order_id, adjustment_type, original_amount, delta, reason, staff_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, adjustment.ID, adjustment.BillID, nullIfEmpty(adjustment.OrderID), adjustment.Type, adjustment.OriginalAmount,
		adjustment.Delta, adjustment.Reason, adjustment.StaffID, adjustment.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := adjustment
	return &created, nil
}

func (s *Store) ListAdjustmentsByBills(ctx context.Context, billIDs []string) ([]domain.PriceAdjustment, error) {
	if len(billIDs) == 0 {
		return []domain.PriceAdjustment{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, COALESCE(order_id, ''), adjustment_type, original_amount, delta, reason, staff_id, created_at
		FROM price_adjustments
		WHERE bill_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PriceAdjustment, 0, len(billIDs))
	for rows.Next() {
		var adj domain.PriceAdjustment
		if err := rows.Scan(&adj.ID, &adj.BillID, &adj.OrderID, &adj.Type, &adj.OriginalAmount, &adj.Delta,
			&adj.Reason, &adj.StaffID, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adj.CreatedAt = adj.CreatedAt.UTC()
		result = append(result, adj)
	}
	return result, rows.Err()
}

const assignmentColumns = `id, bill_id, cast_id, active, assigned_by, assigned_at, removed_at`

func scanAssignment(row rowScanner) (domain.CastAssignment, error) {
	var (
		a         domain.CastAssignment
		removedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.BillID, &a.CastID, &a.Active, &a.AssignedBy, &a.AssignedAt, &removedAt); err != nil {
		return domain.CastAssignment{}, err
	}
	a.AssignedAt = a.AssignedAt.UTC()
	a.RemovedAt = timePtr(removedAt)
	return a, nil
}

func (s *Store) CreateAssignment(ctx context.Context, assignment domain.CastAssignment) (*domain.CastAssignment, error) {
	if assignment.ID == "" {
		assignment.ID = xid.New("asg")
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	assignment.Active = true
	assignment.RemovedAt = nil

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status domain.BillStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM bills WHERE id = $1 FOR SHARE`, assignment.BillID).Scan(&status)
	if err != nil {
		return nil, notFound(err)
	}
	if status != domain.BillOpen {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cast_assignments (id, bill_id, cast_id, active, assigned_by, assigned_at)
		VALUES ($1,$2,$3,true,$4,$5)
	`, assignment.ID, assignment.BillID, assignment.CastID, assignment.AssignedBy, assignment.AssignedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := assignment
	return &created, nil
}

func (s *Store) DeactivateAssignment(ctx context.Context, billID string, castID string, at time.Time) (*domain.CastAssignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx, `
		UPDATE cast_assignments
		SET active = false, removed_at = $3
		WHERE bill_id = $1 AND cast_id = $2 AND active = true
		RETURNING `+assignmentColumns, billID, castID, at))
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *Store) ListAssignments(ctx context.Context, billID string, activeOnly bool) ([]domain.CastAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM cast_assignments
		WHERE bill_id = $1 AND ($2::boolean = false OR active = true)
		ORDER BY assigned_at ASC, id ASC
	`, billID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CastAssignment, 0, 4)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
