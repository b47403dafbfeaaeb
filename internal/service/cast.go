package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/events"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

func hashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

func (s *Service) CreateCastMember(ctx context.Context, req domain.CastCreateRequest) (domain.CastMember, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CastMember{}, err
	}

	name := strings.TrimSpace(req.Name)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if name == "" || username == "" || len(req.PIN) < 4 || req.HourlyRate < 0 || req.TransportFee < 0 {
		return domain.CastMember{}, store.ErrInvalidInput
	}
	referredBy := strings.TrimSpace(req.ReferredBy)
	if referredBy != "" {
		if _, err := s.repo.GetCastMember(ctx, referredBy); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CastMember{}, store.ErrInvalidInput
			}
			return domain.CastMember{}, err
		}
	}

	pinHash, err := hashPIN(req.PIN)
	if err != nil {
		return domain.CastMember{}, err
	}
	created, err := s.repo.CreateCastMember(ctx, domain.CastMember{
		ID:           xid.New("cast"),
		Name:         name,
		Username:     username,
		PINHash:      pinHash,
		HourlyRate:   req.HourlyRate,
		TransportFee: req.TransportFee,
		ReferredBy:   referredBy,
		Active:       true,
		CreatedAt:    s.clock(),
	})
	if err != nil {
		return domain.CastMember{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "cast_create", "cast", created.ID, fmt.Sprintf("username=%s,hourly=%d", created.Username, created.HourlyRate))
	return *created, nil
}

func (s *Service) ListCastMembers(ctx context.Context, includeInactive bool) ([]domain.CastMember, error) {
	if _, err := requireStaff(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCastMembers(ctx, includeInactive)
}

func (s *Service) UpdateCastMember(ctx context.Context, castID string, req domain.CastUpdateRequest) (domain.CastMember, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CastMember{}, err
	}

	existing, err := s.repo.GetCastMember(ctx, strings.TrimSpace(castID))
	if err != nil {
		return domain.CastMember{}, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.CastMember{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.PIN != nil {
		if len(*req.PIN) < 4 {
			return domain.CastMember{}, store.ErrInvalidInput
		}
		if updated.PINHash, err = hashPIN(*req.PIN); err != nil {
			return domain.CastMember{}, err
		}
	}
	if req.HourlyRate != nil {
		updated.HourlyRate = *req.HourlyRate
	}
	if req.TransportFee != nil {
		updated.TransportFee = *req.TransportFee
	}
	if req.ReferredBy != nil {
		referredBy := strings.TrimSpace(*req.ReferredBy)
		if referredBy == updated.ID {
			return domain.CastMember{}, store.ErrInvalidInput
		}
		if referredBy != "" {
			if _, err := s.repo.GetCastMember(ctx, referredBy); err != nil {
				return domain.CastMember{}, err
			}
		}
		updated.ReferredBy = referredBy
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if updated.HourlyRate < 0 || updated.TransportFee < 0 {
		return domain.CastMember{}, store.ErrInvalidInput
	}

	saved, err := s.repo.UpdateCastMember(ctx, updated)
	if err != nil {
		return domain.CastMember{}, err
	}
	s.logAudit(ctx, s.defaultStoreID, "cast_update", "cast", saved.ID, fmt.Sprintf("active=%t,hourly=%d,pin_changed=%t", saved.Active, saved.HourlyRate, req.PIN != nil))
	return *saved, nil
}

// ClockIn opens a pending shift for the calling cast member.
func (s *Service) ClockIn(ctx context.Context, req domain.ClockInRequest) (domain.CastShift, error) {
	actor, err := requireCast(ctx)
	if err != nil {
		return domain.CastShift{}, err
	}
	storeID := s.storeOrDefault(req.StoreID)

	member, err := s.repo.GetCastMember(ctx, actor.CastID)
	if err != nil {
		return domain.CastShift{}, err
	}
	if !member.Active {
		return domain.CastShift{}, fmt.Errorf("%w: cast member is inactive", ErrForbidden)
	}

	shift, err := s.repo.CreateShift(ctx, domain.CastShift{
		ID:            xid.New("shift"),
		CastID:        member.ID,
		StoreID:       storeID,
		ClockIn:       s.clock(),
		ClockInStatus: domain.ApprovalPending,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.CastShift{}, err
	}

	s.logAudit(ctx, storeID, "clock_in", "shift", shift.ID, "cast="+member.ID)
	s.publish(ctx, events.ShiftClockIn, storeID, shift.ID, map[string]any{"cast_id": member.ID})
	return *shift, nil
}

func (s *Service) ClockOut(ctx context.Context) (domain.CastShift, error) {
	actor, err := requireCast(ctx)
	if err != nil {
		return domain.CastShift{}, err
	}
	open, err := s.repo.GetOpenShift(ctx, actor.CastID)
	if err != nil {
		return domain.CastShift{}, err
	}

	shift, err := s.repo.CloseShift(ctx, open.ID, s.clock())
	if err != nil {
		return domain.CastShift{}, err
	}

	s.logAudit(ctx, shift.StoreID, "clock_out", "shift", shift.ID, "cast="+shift.CastID)
	s.publish(ctx, events.ShiftClockOut, shift.StoreID, shift.ID, map[string]any{"cast_id": shift.CastID})
	return *shift, nil
}

// CurrentShift returns the caller's open shift, or nil when none is open.
func (s *Service) CurrentShift(ctx context.Context) (*domain.CastShift, error) {
	actor, err := requireCast(ctx)
	if err != nil {
		return nil, err
	}
	shift, err := s.repo.GetOpenShift(ctx, actor.CastID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// ReviewShift approves or rejects one edge of a shift. Each edge is decided once.
func (s *Service) ReviewShift(ctx context.Context, shiftID string, edge string, decision domain.ApprovalStatus) (domain.CastShift, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.CastShift{}, err
	}
	if edge != store.ShiftEdgeClockIn && edge != store.ShiftEdgeClockOut {
		return domain.CastShift{}, store.ErrInvalidInput
	}
	if decision != domain.ApprovalApproved && decision != domain.ApprovalRejected {
		return domain.CastShift{}, store.ErrInvalidInput
	}

	shift, err := s.repo.ReviewShift(ctx, strings.TrimSpace(shiftID), edge, decision, actor.Username, s.clock())
	if err != nil {
		return domain.CastShift{}, err
	}

	s.logAudit(ctx, shift.StoreID, "shift_review", "shift", shift.ID, fmt.Sprintf("edge=%s,decision=%s", edge, decision))
	s.publish(ctx, events.ShiftReviewed, shift.StoreID, shift.ID, map[string]any{"cast_id": shift.CastID, "edge": edge, "decision": decision})
	return *shift, nil
}

func (s *Service) ApproveClockIn(ctx context.Context, shiftID string) (domain.CastShift, error) {
	return s.ReviewShift(ctx, shiftID, store.ShiftEdgeClockIn, domain.ApprovalApproved)
}

func (s *Service) RejectClockIn(ctx context.Context, shiftID string) (domain.CastShift, error) {
	return s.ReviewShift(ctx, shiftID, store.ShiftEdgeClockIn, domain.ApprovalRejected)
}

func (s *Service) ApproveClockOut(ctx context.Context, shiftID string) (domain.CastShift, error) {
	return s.ReviewShift(ctx, shiftID, store.ShiftEdgeClockOut, domain.ApprovalApproved)
}

func (s *Service) RejectClockOut(ctx context.Context, shiftID string) (domain.CastShift, error) {
	return s.ReviewShift(ctx, shiftID, store.ShiftEdgeClockOut, domain.ApprovalRejected)
}

// MarkLatePickup flags a shift for the late pickup rate from start onward.
// A nil start means now. The start is clamped into the shift span.
func (s *Service) MarkLatePickup(ctx context.Context, shiftID string, start *time.Time) (domain.CastShift, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.CastShift{}, err
	}
	shift, err := s.repo.GetShift(ctx, strings.TrimSpace(shiftID))
	if err != nil {
		return domain.CastShift{}, err
	}

	at := s.clock()
	if start != nil && !start.IsZero() {
		at = start.UTC()
	}
	if at.Before(shift.ClockIn) {
		at = shift.ClockIn
	}
	if shift.ClockOut != nil && at.After(*shift.ClockOut) {
		at = *shift.ClockOut
	}

	updated, err := s.repo.SetLatePickup(ctx, shift.ID, at)
	if err != nil {
		return domain.CastShift{}, err
	}
	s.logAudit(ctx, updated.StoreID, "late_pickup", "shift", updated.ID, "start="+engine.FormatClock(at))
	return *updated, nil
}

func (s *Service) ListPendingShifts(ctx context.Context, storeID int64) ([]domain.CastShift, error) {
	if _, err := requireStaff(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPendingShifts(ctx, storeID)
}

// ListShifts returns the shifts that clocked in during a business day.
// A cast caller only sees their own.
func (s *Service) ListShifts(ctx context.Context, storeID int64, castID string, date string) ([]domain.CastShift, error) {
	actor, err := requireFloor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCast {
		castID = actor.CastID
	}
	day, err := s.businessDay(date)
	if err != nil {
		return nil, err
	}
	from, to := engine.BusinessDayRange(day)
	return s.repo.ListShifts(ctx, domain.ShiftFilter{StoreID: storeID, CastID: strings.TrimSpace(castID), From: from, To: to})
}
