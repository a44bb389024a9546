package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/claimcheck/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	cap int

	// Writes are serialized; SQLite allows a single writer anyway and the
	// append-then-evict sequence must not interleave.
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, capacity int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, cap: capOrDefault(capacity)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS learned_patterns (
	template   TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	uses       INTEGER NOT NULL DEFAULT 0,
	successes  INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS performance_records (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	record      TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_performance_records_document ON performance_records(document_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadPatterns(ctx context.Context) ([]model.PatternRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template, kind, uses, successes, created_at FROM learned_patterns ORDER BY created_at, template`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load patterns")
	}
	defer rows.Close()

	var out []model.PatternRule
	for rows.Next() {
		var p model.PatternRule
		var kind string
		if err := rows.Scan(&p.Template, &kind, &p.Uses, &p.Successes, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern")
		}
		p.Kind = model.EntityKind(kind)
		p.Origin = model.OriginLearned
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load patterns iterate")
}

func (s *SQLiteStore) AppendPatterns(ctx context.Context, rules []model.PatternRule) error {
	if len(rules) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append patterns")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rules {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO learned_patterns (template, kind, uses, successes, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(template) DO NOTHING`,
			r.Template, string(r.Kind), r.Uses, r.Successes, created,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert pattern %q", r.Template)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append patterns")
}

func (s *SQLiteStore) UpdatePatternStats(ctx context.Context, rules []model.PatternRule) error {
	if len(rules) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update pattern stats")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rules {
		if _, err := tx.ExecContext(ctx,
			`UPDATE learned_patterns SET uses = ?, successes = ? WHERE template = ?`,
			r.Uses, r.Successes, r.Template,
		); err != nil {
			return eris.Wrapf(err, "sqlite: update pattern %q", r.Template)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update pattern stats")
}

func (s *SQLiteStore) AppendRecord(ctx context.Context, rec model.PerformanceRecord) error {
	rec = prepareRecord(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append record")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO performance_records (id, document_id, record, recorded_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, string(data), rec.RecordedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert record")
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM performance_records WHERE seq NOT IN (SELECT seq FROM performance_records ORDER BY seq DESC LIMIT ?)`,
		s.cap,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: evict records")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		zap.L().Debug("store: evicted performance records", zap.Int64("count", n), zap.Int("cap", s.cap))
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append record")
}

func (s *SQLiteStore) ListRecords(ctx context.Context) ([]model.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM performance_records ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var out []model.PerformanceRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.PerformanceRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}
