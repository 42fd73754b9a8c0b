// Package store is the Postgres-backed persistence layer the Alert Engine
// depends on through the alert.Store interface. It owns the alerts and
// notifications tables exclusively, per the spec's ownership rules.
package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
)

var log = btclog.Disabled

// UseLogger installs logger as this package's logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// acquireTimeout bounds how long dialing one new pooled connection may
// take. Waiting for a free connection from a busy pool is bounded only by
// the caller's context.
const acquireTimeout = 2 * time.Second

// Config configures the Postgres connection.
type Config struct {
	Host         string
	Port         uint16
	Username     string
	Password     string
	DatabaseName string
}

// dsn renders cfg into a libpq-style connection string.
func (cfg Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DatabaseName)
}

// Store implements alert.Store against a Postgres connection pool. The
// pool is lazily connected and shared with the Relay Gateway, which only
// reads and writes the bot_metadata table through it.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses cfg into a pool configuration, applies pending migrations,
// and returns a ready Store. It does not eagerly dial; pgxpool connects
// lazily on first use, per the spec's resource model.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, errors.Errorf("parse postgres config: %v", err)
	}
	poolCfg.ConnConfig.ConnectTimeout = acquireTimeout
	poolCfg.LazyConnect = true

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Errorf("connect to postgres: %v", err)
	}

	if err := applyMigrations(cfg); err != nil {
		pool.Close()
		return nil, errors.Errorf("apply migrations: %v", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ alert.Store = (*Store)(nil)

// HasPublishedMetadata reports whether a one-time metadata event has
// already been published for pubkey, so the gateway can skip republishing
// its kind-0 event on every restart.
func (s *Store) HasPublishedMetadata(ctx context.Context, pubkey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bot_metadata WHERE pubkey = $1)`, pubkey).
		Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

// MarkMetadataPublished records that pubkey's metadata event has been
// published, idempotently.
func (s *Store) MarkMetadataPublished(ctx context.Context, pubkey string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_metadata (pubkey) VALUES ($1) ON CONFLICT (pubkey) DO NOTHING`,
		pubkey)
	if err != nil {
		return classify(err)
	}
	return nil
}

// Insert implements alert.Store.
func (s *Store) Insert(ctx context.Context, req alert.Request) (*alert.Subscription, error) {
	const q = `
		INSERT INTO alerts
			(alert_type_id, active, requestor_pk, threshold_num,
			 event_data_identifier)
		VALUES ($1, true, $2, $3, $4)
		RETURNING id, created_at`

	var watched *string
	if req.WatchedIdentifier != "" {
		watched = &req.WatchedIdentifier
	}

	var (
		id        int64
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx, q, int(req.Kind), req.Requestor, req.Threshold, watched).
		Scan(&id, &createdAt)
	if err != nil {
		return nil, classify(err)
	}

	return &alert.Subscription{
		ID:                id,
		Kind:              req.Kind,
		Requestor:         req.Requestor,
		Threshold:         req.Threshold,
		WatchedIdentifier: req.WatchedIdentifier,
		Active:            true,
		CreatedAt:         createdAt,
	}, nil
}

// LoadActive implements alert.Store.
func (s *Store) LoadActive(ctx context.Context) ([]alert.Subscription, error) {
	const q = `
		SELECT id, alert_type_id, requestor_pk, threshold_num,
		       COALESCE(event_data_identifier, ''), active, block_state,
		       created_at
		FROM alerts
		WHERE active
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []alert.Subscription
	for rows.Next() {
		var (
			sub        alert.Subscription
			kindID     int
			stateBytes []byte
		)

		if err := rows.Scan(&sub.ID, &kindID, &sub.Requestor, &sub.Threshold,
			&sub.WatchedIdentifier, &sub.Active, &stateBytes, &sub.CreatedAt); err != nil {
			return nil, errors.Errorf("scan alert row: %v", err)
		}

		kind, err := alert.KindFromID(kindID)
		if err != nil {
			// A bad stored kind is a programming invariant violation per
			// the spec: fatal, not skip-and-continue.
			return nil, errors.Errorf("alert %d: %v", sub.ID, err)
		}
		sub.Kind = kind

		// Only FeeLevel thresholds are fractional; the other kinds count
		// blocks, so their stored numeric is rounded to a whole number.
		if kind != alert.FeeLevel {
			sub.Threshold = math.Round(sub.Threshold)
		}

		state, err := decodeState(stateBytes)
		if err != nil {
			return nil, errors.Errorf("alert %d: %v", sub.ID, err)
		}
		sub.State = state

		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return out, nil
}

// ApplyEvaluation implements alert.Store. It writes every mutated row via
// one batched UPDATE keyed by id, and appends every notification, all
// within a single transaction — resolving the broken positional-parameter
// batch statement the spec's §9 design note flags in the source, by
// binding each row's values to its own set of placeholders instead of
// reusing positions across rows.
func (s *Store) ApplyEvaluation(ctx context.Context, updated []alert.Subscription,
	notifications []alert.Notification) error {

	if len(updated) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	if err := applyUpdates(ctx, tx, updated); err != nil {
		return err
	}

	if err := appendNotifications(ctx, tx, notifications); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}

	return nil
}

// applyUpdates issues the single batched UPDATE described above.
func applyUpdates(ctx context.Context, tx pgx.Tx, updated []alert.Subscription) error {
	var (
		values []string
		args   []interface{}
	)

	for _, sub := range updated {
		stateJSON, err := encodeState(sub.State)
		if err != nil {
			return errors.Errorf("encode state for alert %d: %v", sub.ID, err)
		}

		base := len(args)
		values = append(values, fmt.Sprintf(
			"($%d::bigint, $%d::bool, $%d::jsonb)", base+1, base+2, base+3))
		args = append(args, sub.ID, sub.Active, stateJSON)
	}

	q := fmt.Sprintf(`
		UPDATE alerts AS a
		SET active = v.active, block_state = v.block_state
		FROM (VALUES %s) AS v(id, active, block_state)
		WHERE a.id = v.id`, strings.Join(values, ", "))

	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return classify(err)
	}
	return nil
}

// appendNotifications inserts every fired notification in one statement.
func appendNotifications(ctx context.Context, tx pgx.Tx, notifications []alert.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	var (
		values []string
		args   []interface{}
	)

	for _, n := range notifications {
		base := len(args)
		values = append(values, fmt.Sprintf("($%d::bigint, $%d::text)", base+1, base+2))
		args = append(args, n.SubscriptionID, n.Body)
	}

	q := fmt.Sprintf(`
		INSERT INTO notifications (alert_id, sent_message)
		VALUES %s`, strings.Join(values, ", "))

	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return classify(err)
	}
	return nil
}
