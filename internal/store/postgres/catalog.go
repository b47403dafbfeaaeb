package postgres

import (
	"context"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

const productColumns = `id, name, category, price, tax_applicable, back_free, back_designated, points,
	drink_units, extension_minutes, extension_tier, sort_order, active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.TaxApplicable, &p.BackFree, &p.BackDesignated, &p.Points,
		&p.DrinkUnits, &p.ExtensionMinutes, &p.ExtensionTier, &p.SortOrder, &p.Active)
	return p, err
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, active FROM stores ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 2)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Active); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

func (s *Store) ListTables(ctx context.Context, storeID int64) ([]domain.FloorTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, label, seats, active
		FROM floor_tables
		WHERE active = true AND ($1::bigint = 0 OR store_id = $1)
		ORDER BY store_id, label
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make([]domain.FloorTable, 0, 16)
	for rows.Next() {
		var t domain.FloorTable
		if err := rows.Scan(&t.ID, &t.StoreID, &t.Label, &t.Seats, &t.Active); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (s *Store) GetTable(ctx context.Context, tableID string) (*domain.FloorTable, error) {
	var t domain.FloorTable
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, label, seats, active
		FROM floor_tables
		WHERE id = $1
	`, tableID).Scan(&t.ID, &t.StoreID, &t.Label, &t.Seats, &t.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || !product.Category.Valid() || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
	`, product.ID, product.Name, product.Category, product.Price, product.TaxApplicable, product.BackFree, product.BackDesignated,
		product.Points, product.DrinkUnits, product.ExtensionMinutes, product.ExtensionTier, product.SortOrder, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, tax_applicable = $4, back_free = $5, back_designated = $6,
			points = $7, sort_order = $8, active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.TaxApplicable, product.BackFree, product.BackDesignated,
		product.Points, product.SortOrder, product.Active)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_price, new_price, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.OldPrice, entry.NewPrice, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price, new_price, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.OldPrice, &entry.NewPrice, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	return history, rows.Err()
}
