package service

import (
	"context"
	"encoding/json"
	"strings"

	"barledger/backend/internal/cache"
	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/logging"
	"barledger/backend/internal/store"
)

var customerPaymentMethods = []domain.PaymentMethod{
	domain.PaymentCash,
	domain.PaymentCard,
	domain.PaymentQR,
	domain.PaymentContactless,
}

// CustomerBillByToken serves the read-only table view behind a bill's QR token.
func (s *Service) CustomerBillByToken(ctx context.Context, token string) (CustomerBillView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return CustomerBillView{}, store.ErrNotFound
	}
	return s.cachedCustomerView(ctx, cache.BillTokenKey(token), func() (*domain.Bill, error) {
		return s.repo.GetBillByToken(ctx, token)
	})
}

// CustomerBillByTable serves the view of the bill currently open on a table.
func (s *Service) CustomerBillByTable(ctx context.Context, tableID string) (CustomerBillView, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return CustomerBillView{}, store.ErrNotFound
	}
	return s.cachedCustomerView(ctx, cache.BillTableKey(tableID), func() (*domain.Bill, error) {
		return s.repo.GetOpenBillByTable(ctx, tableID)
	})
}

// SelectPaymentMethodByToken lets the table pick how it will pay while the bill is open.
func (s *Service) SelectPaymentMethodByToken(ctx context.Context, token string, method domain.PaymentMethod) (CustomerBillView, error) {
	if !method.CustomerSelectable() {
		return CustomerBillView{}, store.ErrInvalidInput
	}
	bill, err := s.repo.GetBillByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return CustomerBillView{}, err
	}
	if bill.Status != domain.BillOpen {
		return CustomerBillView{}, store.ErrConflict
	}

	updated, err := s.repo.SetPaymentMethod(ctx, bill.ID, method)
	if err != nil {
		return CustomerBillView{}, err
	}
	s.logAudit(WithActor(ctx, domain.Actor{Username: "customer", Role: "customer"}), updated.StoreID, "payment_method_select", "bill", updated.ID, string(method))
	s.invalidateBillView(ctx, *updated)
	return s.customerView(ctx, *updated)
}

func (s *Service) cachedCustomerView(ctx context.Context, key string, load func() (*domain.Bill, error)) (CustomerBillView, error) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.LogWarn(s.logger, "service", "cachedCustomerView", "read cached bill view", key, err)
	}
	if ok {
		var view CustomerBillView
		if err := json.Unmarshal(raw, &view); err == nil {
			return view, nil
		}
	}

	bill, err := load()
	if err != nil {
		return CustomerBillView{}, err
	}
	view, err := s.customerView(ctx, *bill)
	if err != nil {
		return CustomerBillView{}, err
	}

	if encoded, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.billViewTTL); err != nil {
			logging.LogWarn(s.logger, "service", "cachedCustomerView", "write cached bill view", key, err)
		}
	}
	return view, nil
}

func (s *Service) customerView(ctx context.Context, bill domain.Bill) (CustomerBillView, error) {
	detail, err := s.billDetail(ctx, bill)
	if err != nil {
		return CustomerBillView{}, err
	}
	table, err := s.repo.GetTable(ctx, bill.TableID)
	if err != nil {
		return CustomerBillView{}, err
	}

	lines := make([]CustomerLine, 0, len(detail.Orders))
	for _, order := range detail.Orders {
		if order.IsCancelled {
			continue
		}
		charge, err := engine.LineCharge(order.UnitPrice, order.Quantity, order.TaxApplicable)
		if err != nil {
			return CustomerBillView{}, err
		}
		lines = append(lines, CustomerLine{Name: order.ProductName, Quantity: order.Quantity, Charge: charge})
	}

	var adjustmentTotal int64
	for _, adj := range detail.Adjustments {
		adjustmentTotal += adj.Delta
	}

	view := detail.View
	return CustomerBillView{
		TableLabel:            table.Label,
		Status:                bill.Status,
		StartTime:             bill.StartTime,
		SeatingTier:           bill.SeatingTier,
		Lines:                 lines,
		AdjustmentTotal:       adjustmentTotal,
		CurrentTotal:          view.CurrentTotal,
		DisplayTotal:          view.DisplayTotal,
		PaymentMethod:         bill.PaymentMethod,
		CardSurchargeApplied:  view.CardSurchargeApplied,
		ElapsedMinutes:        view.ElapsedMinutes,
		RemainingMinutes:      view.RemainingMinutes,
		ShowExtensionPreview:  view.ShowExtensionPreview,
		ExtensionPreviewTotal: view.ExtensionPreviewTotal,
		PaymentMethods:        customerPaymentMethods,
		GeneratedAt:           s.clock(),
	}, nil
}
