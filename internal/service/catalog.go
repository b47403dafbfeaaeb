package service

import (
	"context"
	"fmt"
	"strings"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/logging"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !req.Category.Valid() || req.Price < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Category == domain.CategoryExtension && req.ExtensionMinutes == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Category != domain.CategoryExtension && (req.ExtensionMinutes != 0 || req.ExtensionTier != domain.ExtensionTierNone) {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Category != domain.CategoryDrinks && req.DrinkUnits != 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:               xid.New("prd"),
		Name:             req.Name,
		Category:         req.Category,
		Price:            req.Price,
		TaxApplicable:    req.TaxApplicable,
		BackFree:         req.BackFree,
		BackDesignated:   req.BackDesignated,
		Points:           req.Points,
		DrinkUnits:       req.DrinkUnits,
		ExtensionMinutes: req.ExtensionMinutes,
		ExtensionTier:    req.ExtensionTier,
		SortOrder:        req.SortOrder,
		Active:           true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,category=%s,price=%d", created.Name, created.Category, created.Price))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.TaxApplicable != nil {
		updated.TaxApplicable = *req.TaxApplicable
	}
	if req.BackFree != nil {
		updated.BackFree = *req.BackFree
	}
	if req.BackDesignated != nil {
		updated.BackDesignated = *req.BackDesignated
	}
	if req.Points != nil {
		updated.Points = *req.Points
	}
	if req.SortOrder != nil {
		updated.SortOrder = *req.SortOrder
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if updated.Price < 0 || updated.BackFree < 0 || updated.BackDesignated < 0 || updated.Points < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.Price != saved.Price {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:        xid.New("ph"),
			ProductID: saved.ID,
			OldPrice:  existing.Price,
			NewPrice:  saved.Price,
			ChangedBy: actor.Username,
			ChangedAt: s.clock(),
		}); err != nil {
			s.logger.WithField("product_id", saved.ID).Warnf("failed to record price history: %v", err)
		}
	}

	s.logAudit(ctx, s.defaultStoreID, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.Price))
	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

// ListTables returns the floor of a store with a live summary of every open bill.
func (s *Service) ListTables(ctx context.Context, storeID int64) ([]TableStatus, error) {
	storeID = s.storeOrDefault(storeID)

	tables, err := s.repo.ListTables(ctx, storeID)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.ListOpenBills(ctx, storeID)
	if err != nil {
		return nil, err
	}
	ids := billIDs(open)
	orders, err := s.repo.ListOrdersByBills(ctx, ids)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.repo.ListAdjustmentsByBills(ctx, ids)
	if err != nil {
		return nil, err
	}
	ordersByBill := groupOrders(orders)
	adjustmentsByBill := groupAdjustments(adjustments)

	now := s.clock()
	summaries := make(map[string]*OpenBillSummary, len(open))
	for _, bill := range open {
		lines := orderLines(ordersByBill[bill.ID])
		summary := &OpenBillSummary{BillID: bill.ID, SeatingTier: bill.SeatingTier, StartTime: bill.StartTime}
		view, err := engine.BuildBillView(billState(bill, lines), lines, adjustmentDeltas(adjustmentsByBill[bill.ID]), 0, now)
		if err != nil {
			logging.LogWarn(s.logger, "service", "ListTables", "bill figures unavailable", bill.ID, err)
			summary.TotalError = err.Error()
		} else {
			summary.CurrentTotal = view.CurrentTotal
			summary.DisplayTotal = view.DisplayTotal
			summary.RemainingMinutes = view.RemainingMinutes
			summary.RemainingLabel = engine.FormatOverdue(view.RemainingMinutes)
		}
		assignments, err := s.repo.ListAssignments(ctx, bill.ID, true)
		if err != nil {
			return nil, err
		}
		castIDs := make([]string, 0, len(assignments))
		for _, a := range assignments {
			castIDs = append(castIDs, a.CastID)
		}
		summary.CastIDs = castIDs
		summaries[bill.TableID] = summary
	}

	result := make([]TableStatus, 0, len(tables))
	for _, table := range tables {
		result = append(result, TableStatus{Table: table, OpenBill: summaries[table.ID]})
	}
	return result, nil
}
