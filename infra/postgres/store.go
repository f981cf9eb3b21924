// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/store"
)

// Config configures the connection pool.
type Config struct {
	DSN               string        `json:"dsn"`
	MaxConns          int32         `json:"max_conns"`
	MinConns          int32         `json:"min_conns"`
	MaxConnLifetime   time.Duration `json:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `json:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `json:"health_check_period"`
}

// SetDefaults fills unset pool parameters.
func (c *Config) SetDefaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = time.Minute
	}
}

// Validate checks the DSN is present.
func (c Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("postgres min_conns %d > max_conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// Store persists plans and events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	log  logger.Logger
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New connects, pings the server and creates the schema when missing.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool, log: logger.OrNop(log), now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.log.Infof("postgres store ready (max_conns=%d)", cfg.MaxConns)
	return s, nil
}

// Migrate creates the plans and events tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const planColumns = `id, status, distance_km, delay, weights, decision, was_rerouted, reroute_reason, version, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (model.Plan, error) {
	var (
		p                   model.Plan
		status              string
		delay, weights, dec []byte
	)
	if err := row.Scan(&p.ID, &status, &p.DistanceKM, &delay, &weights, &dec,
		&p.WasRerouted, &p.RerouteReason, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Plan{}, err
	}
	st, err := model.ParsePlanStatus(status)
	if err != nil {
		return model.Plan{}, err
	}
	p.Status = st
	if err := json.Unmarshal(delay, &p.Delay); err != nil {
		return model.Plan{}, fmt.Errorf("plan %s delay: %w", p.ID, err)
	}
	if err := json.Unmarshal(weights, &p.Weights); err != nil {
		return model.Plan{}, fmt.Errorf("plan %s weights: %w", p.ID, err)
	}
	if len(dec) > 0 {
		var d model.PlanDecision
		if err := json.Unmarshal(dec, &d); err != nil {
			return model.Plan{}, fmt.Errorf("plan %s decision: %w", p.ID, err)
		}
		p.Decision = &d
	}
	return p, nil
}

func (s *Store) ActivePlans(ctx context.Context) ([]model.Plan, error) {
	return s.PlansByStatus(ctx, model.PlanActive)
}

func (s *Store) PlansByStatus(ctx context.Context, status model.PlanStatus) ([]model.Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM plans WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%s plans: %w", status, err)
	}
	defer rows.Close()
	var out []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s plans: %w", status, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Plan{}, fmt.Errorf("plan %s: %w", id, store.ErrNotFound)
	}
	return p, err
}

func (s *Store) PutPlan(ctx context.Context, p model.Plan) (model.Plan, error) {
	if p.ID == "" {
		return model.Plan{}, fmt.Errorf("plan id is required")
	}
	if p.Status == "" {
		p.Status = model.PlanDraft
	}
	delay, err := json.Marshal(p.Delay)
	if err != nil {
		return model.Plan{}, err
	}
	weights, err := json.Marshal(p.Weights)
	if err != nil {
		return model.Plan{}, err
	}
	var dec []byte
	if p.Decision != nil {
		if dec, err = json.Marshal(p.Decision); err != nil {
			return model.Plan{}, err
		}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Plan{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM plans WHERE id = $1 FOR UPDATE`, p.ID).Scan(&cur)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return model.Plan{}, fmt.Errorf("put plan %s: %w", p.ID, err)
	case model.PlanStatus(cur) != p.Status && !model.PlanStatus(cur).CanTransition(p.Status):
		return model.Plan{}, fmt.Errorf("plan %s %s -> %s: %w", p.ID, cur, p.Status, store.ErrIllegalTransition)
	}

	now := s.now().UTC()
	row := tx.QueryRow(ctx, `
INSERT INTO plans (id, status, distance_km, delay, weights, decision, was_rerouted, reroute_reason, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	distance_km = EXCLUDED.distance_km,
	delay = EXCLUDED.delay,
	weights = EXCLUDED.weights,
	decision = EXCLUDED.decision,
	was_rerouted = EXCLUDED.was_rerouted,
	reroute_reason = EXCLUDED.reroute_reason,
	version = plans.version + 1,
	updated_at = EXCLUDED.updated_at
RETURNING `+planColumns,
		p.ID, string(p.Status), p.DistanceKM, delay, weights, dec, p.WasRerouted, p.RerouteReason, now)
	out, err := scanPlan(row)
	if err != nil {
		return model.Plan{}, fmt.Errorf("put plan %s: %w", p.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Plan{}, fmt.Errorf("put plan %s: %w", p.ID, err)
	}
	return out, nil
}

func (s *Store) SavePlanDecision(ctx context.Context, planID string, u store.DecisionUpdate) (model.Plan, error) {
	dec, err := json.Marshal(u.Decision)
	if err != nil {
		return model.Plan{}, err
	}
	row := s.pool.QueryRow(ctx, `
UPDATE plans SET
	decision = $1,
	was_rerouted = CASE WHEN $2::text <> '' THEN TRUE ELSE was_rerouted END,
	reroute_reason = CASE WHEN $2::text <> '' THEN $2::text ELSE reroute_reason END,
	version = version + 1,
	updated_at = $3
WHERE id = $4 AND version = $5
RETURNING `+planColumns,
		dec, u.Reason, s.now().UTC(), planID, u.ExpectedVersion)
	p, err := scanPlan(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Plan{}, fmt.Errorf("save decision %s: %w", planID, err)
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM plans WHERE id = $1)`, planID).Scan(&exists); err != nil {
		return model.Plan{}, fmt.Errorf("save decision %s: %w", planID, err)
	}
	if !exists {
		return model.Plan{}, fmt.Errorf("plan %s: %w", planID, store.ErrNotFound)
	}
	return model.Plan{}, fmt.Errorf("plan %s expected version %d: %w", planID, u.ExpectedVersion, store.ErrConflict)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, next model.PlanStatus) (model.Plan, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Plan{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM plans WHERE id = $1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Plan{}, fmt.Errorf("plan %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Plan{}, err
	}
	if !model.PlanStatus(cur).CanTransition(next) {
		return model.Plan{}, fmt.Errorf("plan %s %s -> %s: %w", id, cur, next, store.ErrIllegalTransition)
	}
	p, err := scanPlan(tx.QueryRow(ctx, `
UPDATE plans SET status = $1, version = version + 1, updated_at = $2
WHERE id = $3
RETURNING `+planColumns, string(next), s.now().UTC(), id))
	if err != nil {
		return model.Plan{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Plan{}, err
	}
	return p, nil
}

func (s *Store) AppendEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if err := e.Validate(); err != nil {
		return model.Event{}, err
	}
	payload, err := model.EncodePayload(e.Payload)
	if err != nil {
		return model.Event{}, err
	}
	if e.TS.IsZero() {
		e.TS = s.now().UTC()
	}
	err = s.pool.QueryRow(ctx, `
INSERT INTO events (plan_id, type, source, severity, ts, payload)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		e.PlanID, string(e.Type), e.Source, string(e.Severity), e.TS, payload).Scan(&e.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("append event: %w", err)
	}
	return e, nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return s.FindEvents(ctx, store.EventFilter{Limit: limit})
}

func typeNames(ts []model.EventType) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

// FindEvents skips rows whose payload no longer decodes and logs them.
func (s *Store) FindEvents(ctx context.Context, f store.EventFilter) ([]model.Event, error) {
	if f.Limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, plan_id, type, source, severity, ts, payload
FROM events
WHERE (cardinality($2::text[]) = 0 OR type = ANY($2::text[]))
	AND NOT (type = ANY($3::text[]))
ORDER BY id DESC LIMIT $1`, f.Limit, typeNames(f.Types), typeNames(f.Exclude))
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var (
			e             model.Event
			typ, severity string
			payload       []byte
		)
		if err := rows.Scan(&e.ID, &e.PlanID, &typ, &e.Source, &severity, &e.TS, &payload); err != nil {
			return nil, fmt.Errorf("find events: %w", err)
		}
		e.Type = model.EventType(typ)
		e.Severity = model.Severity(severity)
		p, err := model.DecodePayload(e.Type, payload)
		if err != nil {
			s.log.Warnf("skipping event %d: %v", e.ID, err)
			continue
		}
		e.Payload = p
		out = append(out, e)
	}
	return out, rows.Err()
}
