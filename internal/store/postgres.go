package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	cap     int
	closeFn func()
	mu      sync.Mutex
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// performanceLockKey is the advisory lock held while appending records so
// concurrent processes evict in a consistent order.
const performanceLockKey int64 = 0x636c61696d

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, capacity int, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, cap: capOrDefault(capacity), closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS learned_patterns (
	template   TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	uses       BIGINT NOT NULL DEFAULT 0,
	successes  BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS performance_records (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	record      JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_performance_records_document ON performance_records(document_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadPatterns(ctx context.Context) ([]model.PatternRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT template, kind, uses, successes, created_at FROM learned_patterns ORDER BY created_at, template`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load patterns")
	}
	defer rows.Close()

	var out []model.PatternRule
	for rows.Next() {
		var p model.PatternRule
		var kind string
		if err := rows.Scan(&p.Template, &kind, &p.Uses, &p.Successes, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pattern")
		}
		p.Kind = model.EntityKind(kind)
		p.Origin = model.OriginLearned
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load patterns iterate")
}

func (s *PostgresStore) AppendPatterns(ctx context.Context, rules []model.PatternRule) error {
	if len(rules) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append patterns")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rules {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO learned_patterns (template, kind, uses, successes, created_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (template) DO NOTHING`,
			r.Template, string(r.Kind), r.Uses, r.Successes, created,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert pattern %q", r.Template)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append patterns")
}

func (s *PostgresStore) UpdatePatternStats(ctx context.Context, rules []model.PatternRule) error {
	if len(rules) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update pattern stats")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rules {
		if _, err := tx.Exec(ctx,
			`UPDATE learned_patterns SET uses = $1, successes = $2 WHERE template = $3`,
			r.Uses, r.Successes, r.Template,
		); err != nil {
			return eris.Wrapf(err, "postgres: update pattern %q", r.Template)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update pattern stats")
}

func (s *PostgresStore) AppendRecord(ctx context.Context, rec model.PerformanceRecord) error {
	rec = prepareRecord(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append record")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, performanceLockKey); err != nil {
		return eris.Wrap(err, "postgres: lock performance records")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO performance_records (id, document_id, record, recorded_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.DocumentID, data, rec.RecordedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert record")
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM performance_records WHERE seq NOT IN (SELECT seq FROM performance_records ORDER BY seq DESC LIMIT $1)`,
		s.cap,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: evict records")
	}
	if n := tag.RowsAffected(); n > 0 {
		zap.L().Debug("store: evicted performance records", zap.Int64("count", n), zap.Int("cap", s.cap))
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append record")
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]model.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM performance_records ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.PerformanceRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.PerformanceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}
