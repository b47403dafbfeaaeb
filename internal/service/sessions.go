package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/events"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

const adjustmentLockTTL = 5 * time.Second

func (s *Service) StartSession(ctx context.Context, req domain.SessionStartRequest) (BillDetail, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return BillDetail{}, err
	}
	if err := engine.ValidateBaseMinutes(req.BaseMinutes); err != nil {
		return BillDetail{}, store.ErrInvalidInput
	}
	if !req.SeatingTier.Valid() {
		return BillDetail{}, store.ErrInvalidInput
	}

	table, err := s.repo.GetTable(ctx, strings.TrimSpace(req.TableID))
	if err != nil {
		return BillDetail{}, err
	}

	now := s.clock()
	seen := make(map[string]struct{}, len(req.CastIDs))
	assignments := make([]domain.CastAssignment, 0, len(req.CastIDs))
	for _, castID := range req.CastIDs {
		castID = strings.TrimSpace(castID)
		if _, dup := seen[castID]; dup || castID == "" {
			continue
		}
		seen[castID] = struct{}{}
		member, err := s.repo.GetCastMember(ctx, castID)
		if err != nil {
			return BillDetail{}, err
		}
		if !member.Active {
			return BillDetail{}, store.ErrInvalidInput
		}
		assignments = append(assignments, domain.CastAssignment{
			ID:         xid.New("asg"),
			CastID:     castID,
			AssignedBy: actor.Username,
			AssignedAt: now,
		})
	}

	token, err := xid.ReadToken()
	if err != nil {
		return BillDetail{}, err
	}

	bill, err := s.repo.CreateBill(ctx, domain.Bill{
		ID:          xid.New("bill"),
		TableID:     table.ID,
		SeatingTier: req.SeatingTier,
		StartTime:   now,
		BaseMinutes: req.BaseMinutes,
		ReadToken:   token,
		Notes:       strings.TrimSpace(req.Notes),
		OpenedBy:    actor.Username,
	}, assignments)
	if err != nil {
		return BillDetail{}, err
	}

	s.logAudit(ctx, bill.StoreID, "session_start", "bill", bill.ID, fmt.Sprintf("table=%s,tier=%s,minutes=%d,cast=%d", table.Label, bill.SeatingTier, bill.BaseMinutes, len(assignments)))
	s.publish(ctx, events.BillOpened, bill.StoreID, bill.ID, map[string]any{"table_id": bill.TableID, "seating_tier": bill.SeatingTier})
	s.invalidateBillView(ctx, *bill)

	return s.GetBill(ctx, bill.ID)
}

func (s *Service) EndSession(ctx context.Context, billID string, method domain.PaymentMethod) (BillDetail, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return BillDetail{}, err
	}
	if !method.Settleable() {
		return BillDetail{}, store.ErrInvalidInput
	}

	bill, err := s.repo.CloseBill(ctx, billID, method, actor.Username, s.clock())
	if err != nil {
		return BillDetail{}, err
	}
	detail, err := s.GetBill(ctx, bill.ID)
	if err != nil {
		return BillDetail{}, err
	}

	s.logAudit(ctx, bill.StoreID, "session_end", "bill", bill.ID, fmt.Sprintf("method=%s,total=%d,display=%d", method, detail.View.CurrentTotal, detail.View.DisplayTotal))
	s.publish(ctx, events.BillClosed, bill.StoreID, bill.ID, map[string]any{"payment_method": method, "total": detail.View.CurrentTotal})
	s.invalidateBillView(ctx, *bill)
	return detail, nil
}

// CancelSession voids an open session. The manager PIN is checked by the caller.
func (s *Service) CancelSession(ctx context.Context, billID string, reason string) (BillDetail, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return BillDetail{}, err
	}

	bill, err := s.repo.CancelBill(ctx, billID, actor.Username, SessionCancelReason, s.clock())
	if err != nil {
		return BillDetail{}, err
	}

	s.logAudit(ctx, bill.StoreID, "session_cancel", "bill", bill.ID, strings.TrimSpace(reason))
	s.publish(ctx, events.BillCancelled, bill.StoreID, bill.ID, map[string]any{"reason": strings.TrimSpace(reason)})
	s.invalidateBillView(ctx, *bill)
	return s.GetBill(ctx, bill.ID)
}

func (s *Service) SetPaymentMethod(ctx context.Context, billID string, method domain.PaymentMethod) (BillDetail, error) {
	if _, err := requireStaff(ctx); err != nil {
		return BillDetail{}, err
	}
	if !method.Settleable() {
		return BillDetail{}, store.ErrInvalidInput
	}

	bill, err := s.repo.SetPaymentMethod(ctx, billID, method)
	if err != nil {
		return BillDetail{}, err
	}
	s.logAudit(ctx, bill.StoreID, "payment_method_set", "bill", bill.ID, string(method))
	s.invalidateBillView(ctx, *bill)
	return s.GetBill(ctx, bill.ID)
}

func (s *Service) ListOpenBills(ctx context.Context, storeID int64) ([]domain.Bill, error) {
	if _, err := requireFloor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListOpenBills(ctx, s.storeOrDefault(storeID))
}

func (s *Service) GetBill(ctx context.Context, billID string) (BillDetail, error) {
	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return BillDetail{}, err
	}
	return s.billDetail(ctx, *bill)
}

func (s *Service) billDetail(ctx context.Context, bill domain.Bill) (BillDetail, error) {
	orders, err := s.repo.ListOrdersByBills(ctx, []string{bill.ID})
	if err != nil {
		return BillDetail{}, err
	}
	adjustments, err := s.repo.ListAdjustmentsByBills(ctx, []string{bill.ID})
	if err != nil {
		return BillDetail{}, err
	}
	assignments, err := s.repo.ListAssignments(ctx, bill.ID, false)
	if err != nil {
		return BillDetail{}, err
	}
	designations, err := s.repo.ListDesignations(ctx, bill.ID)
	if err != nil {
		return BillDetail{}, err
	}

	lines := orderLines(orders)
	view, err := engine.BuildBillView(billState(bill, lines), lines, adjustmentDeltas(adjustments), s.extensionPreviewPrice, s.viewInstant(bill))
	if err != nil {
		return BillDetail{}, err
	}

	return BillDetail{
		Bill:         bill,
		Orders:       orders,
		Adjustments:  adjustments,
		Assignments:  assignments,
		Designations: designations,
		View:         view,
	}, nil
}

// AddOrder puts a product on an open bill. Back and points are captured from
// the product at the bill's current seating tier. Designation extensions
// advance the (bill, cast) counter and may upgrade the bill.
func (s *Service) AddOrder(ctx context.Context, billID string, req domain.OrderCreateRequest) (domain.Order, error) {
	actor, err := requireFloor(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	castID := strings.TrimSpace(req.CastID)
	if actor.Role == domain.RoleCast {
		if castID != "" && castID != actor.CastID {
			return domain.Order{}, fmt.Errorf("%w: cast may only order on their own behalf", ErrForbidden)
		}
		castID = actor.CastID
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return domain.Order{}, store.ErrInvalidInput
	}

	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return domain.Order{}, err
	}
	if bill.Status != domain.BillOpen {
		return domain.Order{}, store.ErrConflict
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return domain.Order{}, err
	}
	if !product.Active {
		return domain.Order{}, store.ErrInvalidInput
	}
	if product.AdvancesDesignation() && castID == "" {
		return domain.Order{}, store.ErrInvalidInput
	}
	if castID != "" {
		if _, err := s.repo.GetCastMember(ctx, castID); err != nil {
			return domain.Order{}, err
		}
	}

	var back, points int64
	if castID != "" {
		back = engine.BackAmount(*product, bill.SeatingTier)
		points = product.Points
	}

	order := domain.Order{
		ID:               xid.New("ord"),
		BillID:           bill.ID,
		ProductID:        product.ID,
		ProductName:      product.Name,
		Category:         product.Category,
		CastID:           castID,
		Quantity:         quantity,
		UnitPrice:        product.Price,
		TaxApplicable:    product.TaxApplicable,
		BackAmount:       back,
		PointsAmount:     points,
		DrinkUnits:       product.DrinkUnits,
		ExtensionMinutes: product.ExtensionMinutes,
		ExtensionTier:    product.ExtensionTier,
		CreatedBy:        actor.Username,
		CreatedAt:        s.clock(),
	}

	var outcome *store.ExtensionOutcome
	if product.AdvancesDesignation() {
		outcome, err = s.repo.CreateExtensionOrder(ctx, order, designationRule, order.CreatedAt)
		if err != nil {
			return domain.Order{}, err
		}
		order = outcome.Order
	} else {
		created, err := s.repo.CreateOrder(ctx, order)
		if err != nil {
			return domain.Order{}, err
		}
		order = *created
	}

	s.logAudit(ctx, bill.StoreID, "order_add", "order", order.ID, fmt.Sprintf("bill=%s,product=%s,qty=%d,cast=%s", bill.ID, product.ID, quantity, castID))
	s.publish(ctx, events.OrderAdded, bill.StoreID, order.ID, map[string]any{"bill_id": bill.ID, "product_id": product.ID, "quantity": quantity})
	if outcome != nil {
		s.recordDesignation(ctx, *bill, *outcome)
	}
	s.invalidateBillView(ctx, *bill)
	return order, nil
}

func designationRule(designation domain.BillDesignation, tier domain.SeatingTier) (bool, domain.SeatingTier) {
	decision := engine.EvaluateUpgrade(engine.DesignationState{
		ExtensionCount: designation.ExtensionCount,
		IsDesignated:   designation.IsDesignated,
	}, tier)
	return decision.MarkDesignated, decision.SeatingTier
}

// recordDesignation audits and publishes what an extension order changed.
func (s *Service) recordDesignation(ctx context.Context, bill domain.Bill, outcome store.ExtensionOutcome) {
	castID := outcome.Designation.CastID
	if outcome.Marked {
		s.logAudit(ctx, bill.StoreID, "cast_designated", "bill", bill.ID, fmt.Sprintf("cast=%s,extensions=%d", castID, outcome.Designation.ExtensionCount))
	}
	if outcome.Upgraded() {
		s.logAudit(ctx, bill.StoreID, "seating_upgrade", "bill", bill.ID, fmt.Sprintf("from=%s,to=%s,cast=%s", outcome.TierBefore, outcome.TierAfter, castID))
		s.publish(ctx, events.BillUpgraded, bill.StoreID, bill.ID, map[string]any{"seating_tier": outcome.TierAfter, "cast_id": castID})
	}
}

// CancelOrder voids one order on an open bill. A cancellation that would
// leave the bill total below zero, for example after a discount, is rejected
// with engine.ErrNegativeTotal.
func (s *Service) CancelOrder(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Order{}, store.ErrInvalidInput
	}

	target, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var (
		order *domain.Order
		bill  *domain.Bill
	)
	err = s.withLock(ctx, "bill-adjust:"+target.BillID, adjustmentLockTTL, func() error {
		var err error
		bill, err = s.repo.GetBill(ctx, target.BillID)
		if err != nil {
			return err
		}
		if bill.Status != domain.BillOpen {
			return store.ErrConflict
		}
		orders, err := s.repo.ListOrdersByBills(ctx, []string{bill.ID})
		if err != nil {
			return err
		}
		adjustments, err := s.repo.ListAdjustmentsByBills(ctx, []string{bill.ID})
		if err != nil {
			return err
		}
		remaining := make([]domain.Order, 0, len(orders))
		for _, o := range orders {
			if o.ID != orderID {
				remaining = append(remaining, o)
			}
		}
		if _, err := engine.BillTotal(orderLines(remaining), adjustmentDeltas(adjustments)); err != nil {
			return err
		}

		order, err = s.repo.CancelOrder(ctx, orderID, actor.Username, reason, s.clock())
		return err
	})
	if err != nil {
		if errors.Is(err, engine.ErrNegativeTotal) {
			return domain.Order{}, engine.ErrNegativeTotal
		}
		return domain.Order{}, err
	}

	s.logAudit(ctx, bill.StoreID, "order_cancel", "order", order.ID, fmt.Sprintf("bill=%s,reason=%s", bill.ID, reason))
	s.publish(ctx, events.OrderCancelled, bill.StoreID, order.ID, map[string]any{"bill_id": bill.ID, "reason": reason})
	s.invalidateBillView(ctx, *bill)
	return *order, nil
}

// AddAdjustment records a staff delta on a bill. Adjustments that would take
// the bill total below zero are rejected with engine.ErrNegativeTotal.
func (s *Service) AddAdjustment(ctx context.Context, billID string, req domain.AdjustmentCreateRequest) (domain.PriceAdjustment, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.PriceAdjustment{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" || req.Delta == 0 || req.OriginalAmount < 0 {
		return domain.PriceAdjustment{}, store.ErrInvalidInput
	}
	switch req.Type {
	case domain.AdjustmentDiscount:
		if req.Delta > 0 {
			return domain.PriceAdjustment{}, store.ErrInvalidInput
		}
	case domain.AdjustmentCancel, domain.AdjustmentPriceChange, domain.AdjustmentCustom:
	default:
		return domain.PriceAdjustment{}, store.ErrInvalidInput
	}

	var created *domain.PriceAdjustment
	var bill *domain.Bill
	err = s.withLock(ctx, "bill-adjust:"+billID, adjustmentLockTTL, func() error {
		var err error
		bill, err = s.repo.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		if bill.IsCancelled() {
			return store.ErrConflict
		}

		orders, err := s.repo.ListOrdersByBills(ctx, []string{bill.ID})
		if err != nil {
			return err
		}
		orderID := strings.TrimSpace(req.OrderID)
		if orderID != "" && !containsOrder(orders, orderID) {
			return store.ErrNotFound
		}
		adjustments, err := s.repo.ListAdjustmentsByBills(ctx, []string{bill.ID})
		if err != nil {
			return err
		}
		if _, err := engine.BillTotal(orderLines(orders), append(adjustmentDeltas(adjustments), req.Delta)); err != nil {
			return err
		}

		created, err = s.repo.CreateAdjustment(ctx, domain.PriceAdjustment{
			ID:             xid.New("adj"),
			BillID:         bill.ID,
			OrderID:        orderID,
			Type:           req.Type,
			OriginalAmount: req.OriginalAmount,
			Delta:          req.Delta,
			Reason:         reason,
			StaffID:        actor.Username,
			CreatedAt:      s.clock(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, engine.ErrNegativeTotal) {
			return domain.PriceAdjustment{}, engine.ErrNegativeTotal
		}
		return domain.PriceAdjustment{}, err
	}

	s.logAudit(ctx, bill.StoreID, "adjustment_add", "bill", bill.ID, fmt.Sprintf("type=%s,delta=%d,reason=%s", created.Type, created.Delta, created.Reason))
	s.publish(ctx, events.AdjustmentAdded, bill.StoreID, created.ID, map[string]any{"bill_id": bill.ID, "delta": created.Delta})
	s.invalidateBillView(ctx, *bill)
	return *created, nil
}

func containsOrder(orders []domain.Order, orderID string) bool {
	for _, order := range orders {
		if order.ID == orderID {
			return true
		}
	}
	return false
}

func (s *Service) AssignCast(ctx context.Context, billID string, castID string) (domain.CastAssignment, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.CastAssignment{}, err
	}
	castID = strings.TrimSpace(castID)
	member, err := s.repo.GetCastMember(ctx, castID)
	if err != nil {
		return domain.CastAssignment{}, err
	}
	if !member.Active {
		return domain.CastAssignment{}, store.ErrInvalidInput
	}

	assignment, err := s.repo.CreateAssignment(ctx, domain.CastAssignment{
		ID:         xid.New("asg"),
		BillID:     billID,
		CastID:     castID,
		AssignedBy: actor.Username,
		AssignedAt: s.clock(),
	})
	if err != nil {
		return domain.CastAssignment{}, err
	}
	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return domain.CastAssignment{}, err
	}
	s.logAudit(ctx, bill.StoreID, "cast_assign", "bill", billID, "cast="+castID)
	return *assignment, nil
}

func (s *Service) UnassignCast(ctx context.Context, billID string, castID string) (domain.CastAssignment, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.CastAssignment{}, err
	}

	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return domain.CastAssignment{}, err
	}
	if bill.Status != domain.BillOpen {
		return domain.CastAssignment{}, store.ErrConflict
	}
	assignment, err := s.repo.DeactivateAssignment(ctx, billID, strings.TrimSpace(castID), s.clock())
	if err != nil {
		return domain.CastAssignment{}, err
	}
	s.logAudit(ctx, bill.StoreID, "cast_unassign", "bill", billID, "cast="+castID)
	return *assignment, nil
}

func (s *Service) ListAssignments(ctx context.Context, billID string, activeOnly bool) ([]domain.CastAssignment, error) {
	if _, err := requireFloor(ctx); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBill(ctx, billID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, billID, activeOnly)
}
