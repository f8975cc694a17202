package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/opsdesk/internal/domain/activity"
)

// AuditStore implements auditstore.Store using PostgreSQL. The
// activity_entries table is append-only: no update or delete statement
// exists anywhere in this file.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

const entryColumns = `id, actor_id, kind, target_type, target_id, details, ip_address, user_agent, created_at`

func (s *AuditStore) Insert(ctx context.Context, e *activity.Entry) error {
	var detailsJSON []byte
	if e.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_entries (id, actor_id, kind, target_type, target_id, details, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ActorID, string(e.Kind), e.TargetType, e.TargetID, detailsJSON, e.IPAddress, e.UserAgent, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, f activity.Filter) ([]activity.Entry, error) {
	where, args := filterClause(f)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + entryColumns + ` FROM activity_entries` + where +
		fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity entries: %w", err)
	}
	defer rows.Close()

	var entries []activity.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *AuditStore) Count(ctx context.Context, f activity.Filter) (int64, error) {
	where, args := filterClause(f)

	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM activity_entries`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activity entries: %w", err)
	}
	return n, nil
}

func (s *AuditStore) Summarize(ctx context.Context, days int) (*activity.Summary, error) {
	if days <= 0 {
		days = 7
	}

	sum := &activity.Summary{ByKind: make(map[activity.Kind]int64)}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT actor_id) FROM activity_entries
		 WHERE created_at >= now() - make_interval(days => $1)`, days,
	).Scan(&sum.Total, &sum.Actors)
	if err != nil {
		return nil, fmt.Errorf("summarize totals: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT kind, count(*) FROM activity_entries
		 WHERE created_at >= now() - make_interval(days => $1)
		 GROUP BY kind`, days)
	if err != nil {
		return nil, fmt.Errorf("summarize by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		sum.ByKind[activity.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dayRows, err := s.pool.Query(ctx,
		`SELECT date_trunc('day', created_at) AS day, count(*)
		 FROM activity_entries
		 WHERE created_at >= now() - make_interval(days => $1)
		 GROUP BY day ORDER BY day ASC`, days)
	if err != nil {
		return nil, fmt.Errorf("summarize by day: %w", err)
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var dc activity.DayCount
		if err := dayRows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		sum.ByDay = append(sum.ByDay, dc)
	}
	return sum, dayRows.Err()
}

// filterClause builds the WHERE clause and args for a Filter. Zero-value
// fields add no condition.
func filterClause(f activity.Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.TargetType != "" {
		add("target_type = $%d", f.TargetType)
	}
	if f.TargetID != "" {
		add("target_id = $%d", f.TargetID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanEntry(row scannable) (activity.Entry, error) {
	var e activity.Entry
	var kind string
	var detailsJSON []byte
	err := row.Scan(&e.ID, &e.ActorID, &kind, &e.TargetType, &e.TargetID, &detailsJSON, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	e.Kind = activity.Kind(kind)
	if detailsJSON != nil {
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			return e, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return e, nil
}
