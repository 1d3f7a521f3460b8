package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/cloudguard/common/database"
	"github.com/telhawk-systems/cloudguard/common/models"
)

// PostgresStore keeps events in the activity_events table, indexed by
// (user_identity, event_ts, id) for keyset pagination.
type PostgresStore struct {
	pool     *pgxpool.Pool
	pageSize int
	now      func() time.Time
}

// NewPostgresStore opens a connection pool to connString.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := &PostgresStore{pool: pool, pageSize: DefaultPageSize, now: time.Now}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Put(ctx context.Context, ev *models.ActivityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO activity_events (id, user_identity, event_name, login_outcome, event_ts, ttl, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_identity = EXCLUDED.user_identity,
			event_name    = EXCLUDED.event_name,
			login_outcome = EXCLUDED.login_outcome,
			event_ts      = EXCLUDED.event_ts,
			ttl           = EXCLUDED.ttl,
			body          = EXCLUDED.body,
			updated_at    = NOW()
	`
	_, err = s.pool.Exec(ctx, query,
		ev.ID, ev.UserIdentity, ev.EventName, ev.LoginOutcome(),
		ev.Timestamp, ev.TTL, body,
	)
	if err != nil {
		return unavailable("postgres put", err)
	}
	return nil
}

func (s *PostgresStore) QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error) {
	var out []models.ActivityEvent
	cursorTS, cursorID := from, ""
	now := s.now().Unix()

	for {
		page, err := s.page(ctx, identity, from, to, cursorTS, cursorID, now)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			break
		}
		last := page[len(page)-1]
		cursorTS, cursorID = last.Timestamp, last.ID
	}
	return failedInWindow(out, identity, from, to), nil
}

func (s *PostgresStore) page(ctx context.Context, identity string, from, to, cursorTS int64, cursorID string, now int64) ([]models.ActivityEvent, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT body
		FROM activity_events
		WHERE user_identity = $1
		  AND event_ts BETWEEN $2 AND $3
		  AND event_name = $4
		  AND login_outcome = $5
		  AND (event_ts, id) > ($6::BIGINT, $7::TEXT)
		  AND (ttl = 0 OR ttl >= $8)
		ORDER BY event_ts, id
		LIMIT $9
	`
	rows, err := s.pool.Query(ctx, query,
		identity, from, to, models.EventConsoleLogin, models.LoginFailure,
		cursorTS, cursorID, now, s.pageSize,
	)
	if err != nil {
		return nil, unavailable("postgres query", err)
	}
	defer rows.Close()

	var page []models.ActivityEvent
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, unavailable("postgres scan", err)
		}
		var ev models.ActivityEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		page = append(page, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("postgres rows", err)
	}
	return page, nil
}

// PurgeExpired deletes events whose ttl has passed and returns how many
// were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM activity_events WHERE ttl > 0 AND ttl < $1`, s.now().Unix())
	if err != nil {
		return 0, unavailable("postgres purge", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("postgres ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
