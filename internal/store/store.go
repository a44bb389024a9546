// Package store persists the learned pattern library and the bounded
// performance history.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// DefaultPerformanceCap is the history length kept when none is configured.
const DefaultPerformanceCap = 100

// PatternStore holds learned patterns. Base patterns are never persisted.
type PatternStore interface {
	LoadPatterns(ctx context.Context) ([]model.PatternRule, error)
	AppendPatterns(ctx context.Context, rules []model.PatternRule) error
	UpdatePatternStats(ctx context.Context, rules []model.PatternRule) error
}

// PerformanceStore is an append-only log that evicts its oldest records
// once the cap is reached. ListRecords returns records oldest first.
type PerformanceStore interface {
	AppendRecord(ctx context.Context, rec model.PerformanceRecord) error
	ListRecords(ctx context.Context) ([]model.PerformanceRecord, error)
}

// Store combines both stores with lifecycle methods.
type Store interface {
	PatternStore
	PerformanceStore
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates and migrates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		st, err = NewSQLite(cfg.DatabaseURL, cfg.PerformanceCap)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.PerformanceCap, nil)
	case "memory":
		st = NewMemory(cfg.PerformanceCap)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func capOrDefault(n int) int {
	if n <= 0 {
		return DefaultPerformanceCap
	}
	return n
}

// prepareRecord fills the id and timestamp when the caller left them empty.
func prepareRecord(rec model.PerformanceRecord) model.PerformanceRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return rec
}

// MemoryStore keeps everything in process. Used for tests and one-shot CLI
// runs that should leave no trace.
type MemoryStore struct {
	mu       sync.Mutex
	cap      int
	patterns []model.PatternRule
	records  []model.PerformanceRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory(capacity int) *MemoryStore {
	return &MemoryStore{cap: capOrDefault(capacity)}
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) LoadPatterns(_ context.Context) ([]model.PatternRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PatternRule(nil), m.patterns...), nil
}

func (m *MemoryStore) AppendPatterns(_ context.Context, rules []model.PatternRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rules {
		if m.indexOf(r.Template) >= 0 {
			continue
		}
		r.Origin = model.OriginLearned
		m.patterns = append(m.patterns, r)
	}
	return nil
}

func (m *MemoryStore) UpdatePatternStats(_ context.Context, rules []model.PatternRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rules {
		if i := m.indexOf(r.Template); i >= 0 {
			m.patterns[i].Uses = r.Uses
			m.patterns[i].Successes = r.Successes
		}
	}
	return nil
}

func (m *MemoryStore) indexOf(template string) int {
	for i, p := range m.patterns {
		if p.Template == template {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) AppendRecord(_ context.Context, rec model.PerformanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, prepareRecord(rec))
	if over := len(m.records) - m.cap; over > 0 {
		m.records = append([]model.PerformanceRecord(nil), m.records[over:]...)
	}
	return nil
}

func (m *MemoryStore) ListRecords(_ context.Context) ([]model.PerformanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PerformanceRecord(nil), m.records...), nil
}
