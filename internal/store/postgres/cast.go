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

const castColumns = `id, name, username, pin_hash, hourly_rate, transport_fee, COALESCE(referred_by, ''), active, created_at`

func scanCastMember(row rowScanner) (domain.CastMember, error) {
	var m domain.CastMember
	err := row.Scan(&m.ID, &m.Name, &m.Username, &m.PINHash, &m.HourlyRate, &m.TransportFee, &m.ReferredBy, &m.Active, &m.CreatedAt)
	if err != nil {
		return domain.CastMember{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *Store) CreateCastMember(ctx context.Context, member domain.CastMember) (*domain.CastMember, error) {
	member.Username = strings.ToLower(strings.TrimSpace(member.Username))
	if member.Username == "" || strings.TrimSpace(member.Name) == "" || member.PINHash == "" {
		return nil, store.ErrInvalidInput
	}
	if member.ID == "" {
		member.ID = xid.New("cast")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	member.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cast_members (`+castColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, member.ID, member.Name, member.Username, member.PINHash, member.HourlyRate, member.TransportFee,
		nullIfEmpty(member.ReferredBy), member.Active, member.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := member
	return &created, nil
}

func (s *Store) GetCastMember(ctx context.Context, castID string) (*domain.CastMember, error) {
	m, err := scanCastMember(s.db.QueryRowContext(ctx, `SELECT `+castColumns+` FROM cast_members WHERE id = $1`, castID))
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) GetCastMemberByUsername(ctx context.Context, username string) (*domain.CastMember, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	m, err := scanCastMember(s.db.QueryRowContext(ctx, `SELECT `+castColumns+` FROM cast_members WHERE username = $1`, username))
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) ListCastMembers(ctx context.Context, includeInactive bool) ([]domain.CastMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+castColumns+`
		FROM cast_members
		WHERE $1::boolean = true OR active = true
		ORDER BY username ASC
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.CastMember, 0, 16)
	for rows.Next() {
		m, err := scanCastMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) UpdateCastMember(ctx context.Context, member domain.CastMember) (*domain.CastMember, error) {
	if member.ReferredBy != "" && member.ReferredBy == member.ID {
		return nil, store.ErrInvalidInput
	}

	m, err := scanCastMember(s.db.QueryRowContext(ctx, `
		UPDATE cast_members
		SET name = $2, pin_hash = $3, hourly_rate = $4, transport_fee = $5, referred_by = $6, active = $7
		WHERE id = $1
		RETURNING `+castColumns, member.ID, member.Name, member.PINHash, member.HourlyRate, member.TransportFee,
		nullIfEmpty(member.ReferredBy), member.Active))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, notFound(err)
	}
	return &m, nil
}

const shiftColumns = `id, cast_id, store_id, clock_in, clock_out, clock_in_status, clock_out_status,
	COALESCE(clock_in_reviewed_by, ''), clock_in_reviewed_at, COALESCE(clock_out_reviewed_by, ''), clock_out_reviewed_at,
	is_late_pickup, late_pickup_start, COALESCE(notes, '')`

func scanShift(row rowScanner) (domain.CastShift, error) {
	var (
		shift     domain.CastShift
		clockOut  sql.NullTime
		inReview  sql.NullTime
		outReview sql.NullTime
		lateStart sql.NullTime
	)
	err := row.Scan(&shift.ID, &shift.CastID, &shift.StoreID, &shift.ClockIn, &clockOut, &shift.ClockInStatus, &shift.ClockOutStatus,
		&shift.ClockInReviewedBy, &inReview, &shift.ClockOutReviewedBy, &outReview, &shift.IsLatePickup, &lateStart, &shift.Notes)
	if err != nil {
		return domain.CastShift{}, err
	}
	shift.ClockIn = shift.ClockIn.UTC()
	shift.ClockOut = timePtr(clockOut)
	shift.ClockInReviewedAt = timePtr(inReview)
	shift.ClockOutReviewedAt = timePtr(outReview)
	shift.LatePickupStart = timePtr(lateStart)
	return shift, nil
}

func (s *Store) queryShifts(ctx context.Context, query string, args ...any) ([]domain.CastShift, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.CastShift, 0, 16)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

func (s *Store) CreateShift(ctx context.Context, shift domain.CastShift) (*domain.CastShift, error) {
	if shift.CastID == "" || shift.StoreID < 1 || shift.ClockIn.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	shift.ClockOut = nil
	shift.ClockInStatus = domain.ApprovalPending
	shift.ClockOutStatus = ""

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cast_shifts (id, cast_id, store_id, clock_in, clock_in_status, clock_out_status, notes)
		VALUES ($1,$2,$3,$4,$5,'',$6)
	`, shift.ID, shift.CastID, shift.StoreID, shift.ClockIn, shift.ClockInStatus, nullIfEmpty(shift.Notes))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := shift
	return &created, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID string) (*domain.CastShift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM cast_shifts WHERE id = $1`, shiftID))
	if err != nil {
		return nil, notFound(err)
	}
	return &shift, nil
}

func (s *Store) GetOpenShift(ctx context.Context, castID string) (*domain.CastShift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cast_shifts
		WHERE cast_id = $1 AND clock_out IS NULL
	`, castID))
	if err != nil {
		return nil, notFound(err)
	}
	return &shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, at time.Time) (*domain.CastShift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		clockIn  time.Time
		clockOut sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT clock_in, clock_out
		FROM cast_shifts
		WHERE id = $1
		FOR UPDATE
	`, shiftID).Scan(&clockIn, &clockOut)
	if err != nil {
		return nil, notFound(err)
	}
	if clockOut.Valid {
		return nil, store.ErrConflict
	}
	if at.Before(clockIn) {
		return nil, store.ErrInvalidInput
	}

	shift, err := scanShift(tx.QueryRowContext(ctx, `
		UPDATE cast_shifts
		SET clock_out = $2, clock_out_status = $3
		WHERE id = $1
		RETURNING `+shiftColumns, shiftID, at, domain.ApprovalPending))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) ReviewShift(ctx context.Context, shiftID string, edge string, decision domain.ApprovalStatus, reviewedBy string, at time.Time) (*domain.CastShift, error) {
	if decision != domain.ApprovalApproved && decision != domain.ApprovalRejected {
		return nil, store.ErrInvalidInput
	}

	var query string
	switch edge {
	case store.ShiftEdgeClockIn:
		query = `
			UPDATE cast_shifts
			SET clock_in_status = $2, clock_in_reviewed_by = $3, clock_in_reviewed_at = $4
			WHERE id = $1 AND clock_in_status = 'pending'
			RETURNING ` + shiftColumns
	case store.ShiftEdgeClockOut:
		query = `
			UPDATE cast_shifts
			SET clock_out_status = $2, clock_out_reviewed_by = $3, clock_out_reviewed_at = $4
			WHERE id = $1 AND clock_out IS NOT NULL AND clock_out_status = 'pending'
			RETURNING ` + shiftColumns
	default:
		return nil, store.ErrInvalidInput
	}

	shift, err := scanShift(s.db.QueryRowContext(ctx, query, shiftID, decision, reviewedBy, at))
	if err == nil {
		return &shift, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, getErr := s.GetShift(ctx, shiftID); getErr != nil {
		return nil, getErr
	}
	return nil, store.ErrConflict
}

func (s *Store) SetLatePickup(ctx context.Context, shiftID string, start time.Time) (*domain.CastShift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE cast_shifts
		SET is_late_pickup = true, late_pickup_start = $2
		WHERE id = $1
		RETURNING `+shiftColumns, shiftID, start))
	if err != nil {
		return nil, notFound(err)
	}
	return &shift, nil
}

func (s *Store) ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.CastShift, error) {
	return s.queryShifts(ctx, `
		SELECT `+shiftColumns+`
		FROM cast_shifts
		WHERE ($1::bigint = 0 OR store_id = $1)
			AND ($2::text = '' OR cast_id = $2)
			AND ($3::timestamptz IS NULL OR clock_in >= $3)
			AND ($4::timestamptz IS NULL OR clock_in < $4)
		ORDER BY clock_in ASC, id ASC
	`, filter.StoreID, filter.CastID, nullTime(filter.From), nullTime(filter.To))
}

func (s *Store) ListPendingShifts(ctx context.Context, storeID int64) ([]domain.CastShift, error) {
	return s.queryShifts(ctx, `
		SELECT `+shiftColumns+`
		FROM cast_shifts
		WHERE ($1::bigint = 0 OR store_id = $1)
			AND (clock_in_status = 'pending' OR clock_out_status = 'pending')
		ORDER BY clock_in ASC, id ASC
	`, storeID)
}
