package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio-backend/internal/models"
)

const sessionColumns = `id, member_id, sub_device_id, start_time, duration_minutes, status, notes, created_at, updated_at`

// SessionTx is the view of the sessions table available while a sub-device
// booking lock is held.
type SessionTx interface {
	// GetForUpdate reads a session and holds its row until the lock ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListActiveOnDevice(ctx context.Context, subDeviceID string, from, to time.Time) ([]*models.Session, error)
	Insert(ctx context.Context, s *models.Session) error
	Save(ctx context.Context, s *models.Session, from models.SessionStatus) error
}

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.MemberID, &s.SubDeviceID, &s.StartTime, &s.DurationMinutes,
		&s.Status, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func collectSessions(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

func (r *SessionRepo) FindUpcomingByMember(ctx context.Context, memberID uuid.UUID, from time.Time, limit int) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE member_id = $1
		  AND start_time >= $2
		  AND status IN ('booked', 'confirmed')
		ORDER BY start_time ASC
		LIMIT $3
	`, memberID, from, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

var sessionSortColumns = map[models.SessionSortField]string{
	models.SortByStartTime: "start_time",
	models.SortByCreatedAt: "created_at",
	models.SortByDuration:  "duration_minutes",
}

func (r *SessionRepo) Search(ctx context.Context, p models.SessionSearchParams) ([]*models.Session, int, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if len(p.Statuses) > 0 {
		statuses := make([]string, len(p.Statuses))
		for i, st := range p.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, statuses)
		argIdx++
	}
	if p.MemberID != nil {
		conditions = append(conditions, fmt.Sprintf("member_id = $%d", argIdx))
		args = append(args, *p.MemberID)
		argIdx++
	}
	if p.SubDeviceID != "" {
		conditions = append(conditions, fmt.Sprintf("sub_device_id = $%d", argIdx))
		args = append(args, p.SubDeviceID)
		argIdx++
	}
	if p.From != nil {
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", argIdx))
		args = append(args, *p.From)
		argIdx++
	}
	if p.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", argIdx))
		args = append(args, *p.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sessions "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sessionSortColumns[p.SortBy]
	if !ok {
		column = "start_time"
	}
	direction := "ASC"
	if p.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM sessions %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		sessionColumns, where, column, direction, argIdx, argIdx+1)
	args = append(args, p.Limit, p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// WithDeviceLock runs fn in one transaction after taking a transaction-scoped
// advisory lock per sub-device. Locks are taken in sorted order so two
// requests moving sessions between the same devices cannot deadlock.
func (r *SessionRepo) WithDeviceLock(ctx context.Context, subDeviceIDs []string, fn func(tx SessionTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin booking transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, key := range deviceLockKeys(subDeviceIDs) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("failed to lock sub-device: %w", err)
		}
	}

	if err := fn(&sessionTx{tx: tx}); err != nil {
		return err
	}

	return mapWriteErr(tx.Commit(ctx))
}

func deviceLockKeys(subDeviceIDs []string) []string {
	seen := make(map[string]bool, len(subDeviceIDs))
	keys := make([]string, 0, len(subDeviceIDs))
	for _, id := range subDeviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, "sub_device:"+id)
	}
	sort.Strings(keys)
	return keys
}

// TransitionStatus moves a session to `to` only if it is still in one of the
// `from` states.
func (r *SessionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus) (*models.Session, error) {
	expected := make([]string, len(from))
	for i, st := range from {
		expected[i] = string(st)
	}

	s, err := scanSession(r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+sessionColumns,
		id, expected, string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleStatus
	}
	return s, err
}

// CompleteWithDebit completes a confirmed session and takes one credit from
// the package in a single transaction. Either both happen or neither does.
func (r *SessionRepo) CompleteWithDebit(ctx context.Context, sessionID, packageID uuid.UUID, now time.Time) (*models.Session, *models.Package, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin completion transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	session, err := scanSession(tx.QueryRow(ctx, `
		UPDATE sessions
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'
		RETURNING `+sessionColumns, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrStaleStatus
	}
	if err != nil {
		return nil, nil, err
	}

	pkg, err := debitPackage(ctx, tx, packageID, 1, now)
	if err != nil {
		return nil, nil, err
	}

	note := "Completed session " + sessionID.String()
	if err := insertUsage(ctx, tx, packageID, &sessionID, 1, &note); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return session, pkg, nil
}

func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type sessionTx struct {
	tx pgx.Tx
}

func (t *sessionTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *sessionTx) ListActiveOnDevice(ctx context.Context, subDeviceID string, from, to time.Time) ([]*models.Session, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE sub_device_id = $1
		  AND status IN ('booked', 'confirmed')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time ASC
	`, subDeviceID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (t *sessionTx) Insert(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO sessions (id, member_id, sub_device_id, start_time, duration_minutes, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, s.ID, s.MemberID, s.SubDeviceID, s.StartTime, s.DurationMinutes, s.EndTime(), string(s.Status), s.Notes,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return mapWriteErr(err)
}

// Save writes s only if the row still has status from.
func (t *sessionTx) Save(ctx context.Context, s *models.Session, from models.SessionStatus) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE sessions
		SET sub_device_id = $2, start_time = $3, duration_minutes = $4, end_time = $5,
		    status = $6, notes = $7, updated_at = NOW()
		WHERE id = $1 AND status = $8
		RETURNING updated_at
	`, s.ID, s.SubDeviceID, s.StartTime, s.DurationMinutes, s.EndTime(), string(s.Status), s.Notes, string(from),
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaleStatus
	}
	return mapWriteErr(err)
}
