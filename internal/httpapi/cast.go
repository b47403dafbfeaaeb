package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"barledger/backend/internal/domain"
)

func (a *API) handleCastMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		members, err := a.service.ListCastMembers(r.Context(), includeInactive)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cast_members": members})
	case http.MethodPost:
		var req domain.CastCreateRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		member, err := a.service.CreateCastMember(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cast_member": member})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCastMemberActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/cast-members/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, errors.New("unknown cast member path"))
		return
	}
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CastUpdateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	member, err := a.service.UpdateCastMember(r.Context(), parts[0], req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cast_member": member})
}

func (a *API) handleStaffUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListStaff(r.Context())})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		user, err := a.auth.CreateStaff(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleShifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	storeID, err := parseStoreID(query.Get("store_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shifts, err := a.service.ListShifts(r.Context(), storeID, query.Get("cast_id"), query.Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

// handleShiftActions serves the cast clock endpoints and the staff review ones.
// Role checks per action live in the service.
func (a *API) handleShiftActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/shifts/")
	switch {
	case len(parts) == 1 && parts[0] == "clock-in":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.ClockInRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		shift, err := a.service.ClockIn(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"shift": shift})
	case len(parts) == 1 && parts[0] == "clock-out":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		shift, err := a.service.ClockOut(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
	case len(parts) == 1 && parts[0] == "current":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		shift, err := a.service.CurrentShift(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
	case len(parts) == 1 && parts[0] == "pending":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		storeID, err := parseStoreID(r.URL.Query().Get("store_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		shifts, err := a.service.ListPendingShifts(r.Context(), storeID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
	case len(parts) == 2 && parts[1] == "review":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.ShiftReviewRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		shift, err := a.service.ReviewShift(r.Context(), parts[0], req.Edge, req.Decision)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
	case len(parts) == 2 && parts[1] == "late-pickup":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.LatePickupRequest
		if r.ContentLength != 0 {
			if err := decodeAndValidate(r, &req); err != nil {
				writeDecodeError(w, err)
				return
			}
		}
		shift, err := a.service.MarkLatePickup(r.Context(), parts[0], req.Start)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown shift action"))
	}
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	view, err := a.service.GetSettings(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSettingActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/settings/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, errors.New("setting key required"))
		return
	}
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SettingUpdateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	setting, err := a.service.UpdateSetting(r.Context(), strings.TrimSpace(parts[0]), *req.Value)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"setting": setting})
}
