package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no record exists for the requested id.
	ErrNotFound = errors.New("storage: record not found")
)

const matchRecordColumns = `id,
        match_date,
        ht_signal_minute,
        ht_signal_price,
        ht_goal_line,
        ht_prematch_price,
        ht_direction,
        ht_goals,
        ht_probability,
        ht_last_minutes,
        ft_signal_minute,
        ft_signal_price,
        ft_goal_line,
        ft_prematch_price,
        ft_direction,
        ft_goals,
        ft_probability,
        ft_last_minutes,
        updated_at`

const (
	upsertMatchRecordSQL = `INSERT INTO match_records (
        id,
        match_date,
        ht_signal_minute,
        ht_signal_price,
        ht_goal_line,
        ht_prematch_price,
        ht_direction,
        ht_goals,
        ht_probability,
        ht_last_minutes,
        ft_signal_minute,
        ft_signal_price,
        ft_goal_line,
        ft_prematch_price,
        ft_direction,
        ft_goals,
        ft_probability,
        ft_last_minutes
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
    )
    ON CONFLICT (id) DO UPDATE
    SET
        match_date        = EXCLUDED.match_date,
        ht_signal_minute  = EXCLUDED.ht_signal_minute,
        ht_signal_price   = EXCLUDED.ht_signal_price,
        ht_goal_line      = EXCLUDED.ht_goal_line,
        ht_prematch_price = EXCLUDED.ht_prematch_price,
        ht_direction      = EXCLUDED.ht_direction,
        ht_goals          = EXCLUDED.ht_goals,
        ht_probability    = EXCLUDED.ht_probability,
        ht_last_minutes   = EXCLUDED.ht_last_minutes,
        ft_signal_minute  = EXCLUDED.ft_signal_minute,
        ft_signal_price   = EXCLUDED.ft_signal_price,
        ft_goal_line      = EXCLUDED.ft_goal_line,
        ft_prematch_price = EXCLUDED.ft_prematch_price,
        ft_direction      = EXCLUDED.ft_direction,
        ft_goals          = EXCLUDED.ft_goals,
        ft_probability    = EXCLUDED.ft_probability,
        ft_last_minutes   = EXCLUDED.ft_last_minutes,
        updated_at        = now();`

	listMatchRecordsSQL = `SELECT ` + matchRecordColumns + `
    FROM match_records
    ORDER BY match_date NULLS FIRST, id;`

	getMatchRecordSQL = `SELECT ` + matchRecordColumns + `
    FROM match_records
    WHERE id = $1;`

	insertNotificationSQL = `INSERT INTO notifications (
        match_id,
        half,
        kind,
        header,
        body
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, created_at;`

	listRecentNotificationsSQL = `SELECT
        id,
        match_id,
        half,
        kind,
        header,
        body,
        created_at
    FROM notifications
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteNotificationsBeforeSQL = `DELETE FROM notifications WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HistoryStore is the archive of observed matches.
//
// GetAll with fresh=false may serve a process-local cache; fresh=true reloads
// it wholesale.
type HistoryStore interface {
	GetAll(ctx context.Context, fresh bool) ([]MatchRecord, error)
	GetByID(ctx context.Context, id string) (MatchRecord, error)
	Upsert(ctx context.Context, rec MatchRecord) error
}

// NotificationStore defines operations for notification auditing.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
	DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to match records and notifications.
type Store struct {
	pool *pgxpool.Pool

	cacheMu sync.RWMutex
	cache   []MatchRecord
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock dies with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetAll returns every archived match, from cache unless fresh is set.
func (s *Store) GetAll(ctx context.Context, fresh bool) ([]MatchRecord, error) {
	if !fresh {
		s.cacheMu.RLock()
		cached := s.cache
		s.cacheMu.RUnlock()
		if len(cached) > 0 {
			return cloneRecords(cached), nil
		}
	}

	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMatchRecordsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list match records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]MatchRecord, 0)
	for rows.Next() {
		rec, scanErr := scanMatchRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.cacheMu.Lock()
	s.cache = records
	s.cacheMu.Unlock()

	return cloneRecords(records), nil
}

// GetByID reads one record straight from the database.
func (s *Store) GetByID(ctx context.Context, id string) (MatchRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return MatchRecord{}, err
	}

	rows, queryErr := pool.Query(ctx, getMatchRecordSQL, id)
	if queryErr != nil {
		return MatchRecord{}, fmt.Errorf("get match record: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return MatchRecord{}, rows.Err()
		}
		return MatchRecord{}, ErrNotFound
	}
	return scanMatchRecord(rows)
}

// Upsert inserts the record or fully replaces the stored one.
func (s *Store) Upsert(ctx context.Context, rec MatchRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if rec.ID == "" {
		return errors.New("upsert match record: empty id")
	}

	var matchDate interface{}
	if !rec.MatchDate.IsZero() {
		matchDate = rec.MatchDate
	}

	args := []interface{}{rec.ID, matchDate}
	args = append(args, halfArgs(rec.HT)...)
	args = append(args, halfArgs(rec.FT)...)

	if _, execErr := pool.Exec(ctx, upsertMatchRecordSQL, args...); execErr != nil {
		return fmt.Errorf("upsert match record: %w", execErr)
	}
	return nil
}

func halfArgs(h HalfRecord) []interface{} {
	var minute, goals, probability interface{}
	if h.SignalMinute != nil {
		minute = *h.SignalMinute
	}
	if h.Goals != nil {
		goals = *h.Goals
	}
	if h.Probability != nil {
		probability = *h.Probability
	}
	var goalLine interface{}
	if h.GoalLine != "" {
		goalLine = h.GoalLine
	}
	return []interface{}{
		minute,
		nullDecimalArg(h.SignalPrice),
		goalLine,
		nullDecimalArg(h.PrematchPrice),
		int16(h.Direction),
		goals,
		probability,
		h.LastMinutes,
	}
}

func nullDecimalArg(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// InsertNotification persists a notification emission.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, err
	}

	row := pool.QueryRow(ctx, insertNotificationSQL, rec.MatchID, rec.Half, rec.Kind, rec.Header, rec.Body)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", scanErr)
	}
	return rec, nil
}

// ListRecentNotifications lists most recent notifications.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	out := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var rec NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.MatchID,
			&rec.Half,
			&rec.Kind,
			&rec.Header,
			&rec.Body,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteNotificationsBefore prunes the audit trail.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteNotificationsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete notifications before: %w", execErr)
	}
	return nil
}

type halfColumns struct {
	minute      sql.NullInt64
	price       sql.NullString
	goalLine    sql.NullString
	prematch    sql.NullString
	direction   int16
	goals       sql.NullInt64
	probability sql.NullFloat64
	lastMinutes bool
}

func (c *halfColumns) targets() []interface{} {
	return []interface{}{
		&c.minute,
		&c.price,
		&c.goalLine,
		&c.prematch,
		&c.direction,
		&c.goals,
		&c.probability,
		&c.lastMinutes,
	}
}

func (c *halfColumns) record() (HalfRecord, error) {
	h := HalfRecord{
		GoalLine:    c.goalLine.String,
		Direction:   match.Direction(c.direction),
		LastMinutes: c.lastMinutes,
	}
	if c.minute.Valid {
		h.SignalMinute = IntPtr(int(c.minute.Int64))
	}
	if c.goals.Valid {
		h.Goals = IntPtr(int(c.goals.Int64))
	}
	if c.probability.Valid {
		h.Probability = FloatPtr(c.probability.Float64)
	}

	var err error
	if h.SignalPrice, err = parseNullDecimal(c.price); err != nil {
		return HalfRecord{}, fmt.Errorf("parse signal price: %w", err)
	}
	if h.PrematchPrice, err = parseNullDecimal(c.prematch); err != nil {
		return HalfRecord{}, fmt.Errorf("parse prematch price: %w", err)
	}
	return h, nil
}

func parseNullDecimal(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func scanMatchRecord(rows pgx.Rows) (MatchRecord, error) {
	var (
		id        string
		matchDate sql.NullTime
		ht, ft    halfColumns
		updatedAt time.Time
	)

	targets := []interface{}{&id, &matchDate}
	targets = append(targets, ht.targets()...)
	targets = append(targets, ft.targets()...)
	targets = append(targets, &updatedAt)

	if err := rows.Scan(targets...); err != nil {
		return MatchRecord{}, err
	}

	rec := MatchRecord{ID: id, UpdatedAt: updatedAt}
	if matchDate.Valid {
		rec.MatchDate = matchDate.Time
	}

	var err error
	if rec.HT, err = ht.record(); err != nil {
		return MatchRecord{}, fmt.Errorf("record %s ht: %w", id, err)
	}
	if rec.FT, err = ft.record(); err != nil {
		return MatchRecord{}, fmt.Errorf("record %s ft: %w", id, err)
	}
	return rec, nil
}

func cloneRecords(in []MatchRecord) []MatchRecord {
	out := make([]MatchRecord, len(in))
	for i, rec := range in {
		out[i] = rec.Clone()
	}
	return out
}

var (
	_ HistoryStore      = (*Store)(nil)
	_ NotificationStore = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
