package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/backend"
	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/metrics"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/optimizer"
	"github.com/sells-group/claimcheck/internal/orchestrator"
	"github.com/sells-group/claimcheck/internal/pipeline"
	"github.com/sells-group/claimcheck/internal/rules"
	"github.com/sells-group/claimcheck/internal/source"
	"github.com/sells-group/claimcheck/internal/store"
)

// appEnv holds the store, catalog and runner shared by the document
// commands.
type appEnv struct {
	Store    store.Store
	Catalog  *rules.Catalog // may be nil
	Runner   *pipeline.Runner
	Registry *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, loads learned patterns and the catalog, and
// builds the runner. Callers should defer env.Close().
func initEnv(ctx context.Context, needCatalog bool) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	cat, err := loadCatalog(needCatalog)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	learned, err := st.LoadPatterns(ctx)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load learned patterns")
	}
	ex := extract.New(extract.OptionsFromConfig(cfg.Extract), learned)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	backends := backend.FromConfig(cfg)
	zap.L().Debug("backends registered", zap.Strings("backends", backends.List()))

	orch := orchestrator.New(backends, ex, cfg.Orchestrator, orchestrator.WithMetrics(m))

	runner := pipeline.New(pipeline.Deps{
		Store:           st,
		Optimizer:       optimizer.New(cfg.Optimizer),
		Orchestrator:    orch,
		Extractor:       ex,
		Catalog:         cat,
		Metrics:         m,
		DefaultLocation: cfg.Catalog.DefaultLocation,
	})

	return &appEnv{Store: st, Catalog: cat, Runner: runner, Registry: reg}, nil
}

// loadCatalog reads the configured catalog. Without a path it returns nil
// unless the caller needs one.
func loadCatalog(required bool) (*rules.Catalog, error) {
	if cfg.Catalog.Path == "" {
		if required {
			return nil, eris.New("catalog.path is not configured")
		}
		return nil, nil
	}
	cat, err := rules.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}
	return cat, nil
}

func sourceOptions() source.Options {
	return source.Options{PdfToTextPath: cfg.OCR.PdfToTextPath}
}

func openDocument(ctx context.Context, path string) (*model.Document, error) {
	return source.Open(ctx, path, sourceOptions())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
