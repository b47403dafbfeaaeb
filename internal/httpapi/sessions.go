package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"barledger/backend/internal/domain"
)

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		storeID, err := parseStoreID(r.URL.Query().Get("store_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		bills, err := a.service.ListOpenBills(r.Context(), storeID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
	case http.MethodPost:
		var req domain.SessionStartRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		detail, err := a.service.StartSession(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, detail)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleBillActions serves /api/v1/bills/{id}[/action[/castID]].
func (a *API) handleBillActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/bills/")
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("bill id required"))
		return
	}
	billID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		detail, err := a.service.GetBill(r.Context(), billID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	switch action := parts[1]; {
	case action == "end" && len(parts) == 2:
		a.handleEndSession(w, r, billID)
	case action == "cancel" && len(parts) == 2:
		a.handleCancelSession(w, r, billID)
	case action == "payment-method" && len(parts) == 2:
		a.handleBillPaymentMethod(w, r, billID)
	case action == "orders" && len(parts) == 2:
		a.handleAddOrder(w, r, billID)
	case action == "adjustments" && len(parts) == 2:
		a.handleAddAdjustment(w, r, billID)
	case action == "assignments" && len(parts) == 2:
		a.handleAssignments(w, r, billID)
	case action == "assignments" && len(parts) == 3:
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		assignment, err := a.service.UnassignCast(r.Context(), billID, parts[2])
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assignment": assignment})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown bill action"))
	}
}

func (a *API) handleEndSession(w http.ResponseWriter, r *http.Request, billID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionEndRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	detail, err := a.service.EndSession(r.Context(), billID, req.PaymentMethod)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleCancelSession requires the manager PIN on top of the staff token.
func (a *API) handleCancelSession(w http.ResponseWriter, r *http.Request, billID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}
	var req domain.SessionCancelRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return
	}
	detail, err := a.service.CancelSession(r.Context(), billID, strings.TrimSpace(req.Reason))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleBillPaymentMethod(w http.ResponseWriter, r *http.Request, billID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.PaymentMethodRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	detail, err := a.service.SetPaymentMethod(r.Context(), billID, req.PaymentMethod)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleAddOrder(w http.ResponseWriter, r *http.Request, billID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.OrderCreateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	order, err := a.service.AddOrder(r.Context(), billID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleAddAdjustment(w http.ResponseWriter, r *http.Request, billID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.AdjustmentCreateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	adjustment, err := a.service.AddAdjustment(r.Context(), billID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"adjustment": adjustment})
}

func (a *API) handleAssignments(w http.ResponseWriter, r *http.Request, billID string) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("all") != "true"
		assignments, err := a.service.ListAssignments(r.Context(), billID, activeOnly)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
	case http.MethodPost:
		var req domain.AssignmentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		assignment, err := a.service.AssignCast(r.Context(), billID, req.CastID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"assignment": assignment})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/orders/")
	if len(parts) != 2 || parts[1] != "cancel" {
		writeError(w, http.StatusNotFound, errors.New("unknown order action"))
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.OrderCancelRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	order, err := a.service.CancelOrder(r.Context(), parts[0], req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// handlePublicBill serves the customer QR page: GET /public/bills/{token} and
// POST /public/bills/{token}/payment-method. The read token is the credential.
func (a *API) handlePublicBill(w http.ResponseWriter, r *http.Request) {
	if !a.publicLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
		return
	}
	parts := pathParts(r.URL.Path, "/api/v1/public/bills/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		view, err := a.service.CustomerBillByToken(r.Context(), parts[0])
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case len(parts) == 2 && parts[1] == "payment-method":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.CustomerPaymentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		view, err := a.service.SelectPaymentMethodByToken(r.Context(), parts[0], req.PaymentMethod)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown bill path"))
	}
}

// handlePublicTable serves GET /public/tables/{tableID}/bill for table tablets.
func (a *API) handlePublicTable(w http.ResponseWriter, r *http.Request) {
	if !a.publicLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
		return
	}
	parts := pathParts(r.URL.Path, "/api/v1/public/tables/")
	if len(parts) != 2 || parts[1] != "bill" {
		writeError(w, http.StatusNotFound, errors.New("unknown table path"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	view, err := a.service.CustomerBillByTable(r.Context(), parts[0])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
