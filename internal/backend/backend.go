// Package backend defines the table extraction backends the orchestrator
// chains together, and a registry to look them up by name.
package backend

import (
	"context"
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/cost"
	"github.com/sells-group/claimcheck/internal/model"
)

// Backend names as they appear in extraction configs.
const (
	NativeTables = "native_tables"
	LayoutGrid   = "layout_grid"
	PdfToText    = "pdftotext"
	MistralOCR   = "mistral_ocr"
	LLMTables    = "llm_tables"
)

var (
	known  = []string{NativeTables, LayoutGrid, PdfToText, MistralOCR, LLMTables}
	remote = []string{MistralOCR, LLMTables}
)

// costs prices remote backend calls for logging.
var costs = cost.NewCalculator(cost.DefaultRates())

// ErrNoTables is returned when a backend ran cleanly but found nothing.
var ErrNoTables = eris.New("backend: no tables found")

// Known reports whether name is a backend this package implements.
func Known(name string) bool { return slices.Contains(known, name) }

// IsRemote reports whether the backend calls a network service.
func IsRemote(name string) bool { return slices.Contains(remote, name) }

// Result is what one backend attempt produced.
type Result struct {
	Backend    string        `json:"backend"`
	Tables     []model.Table `json:"tables"`
	Text       string        `json:"text,omitempty"`
	Confidence float64       `json:"confidence"`
}

// Backend extracts tables from a document.
type Backend interface {
	// Name returns the identifier used in extraction configs.
	Name() string
	// Extract runs one attempt. Implementations must honor ctx.
	Extract(ctx context.Context, doc *model.Document, t model.Tunables) (*Result, error)
}

func newResult(name string, tables []model.Table, text string) (*Result, error) {
	if len(tables) == 0 && text == "" {
		return nil, eris.Wrap(ErrNoTables, name)
	}
	return &Result{
		Backend:    name,
		Tables:     tables,
		Text:       text,
		Confidence: TableConfidence(tables),
	}, nil
}

// Registry manages the available backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend, replacing any with the same name.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns a backend by name, or nil if not registered.
func (r *Registry) Get(name string) Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// List returns registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FromConfig registers the local backends plus any remote backend whose
// credentials are configured.
func FromConfig(cfg *config.Config) *Registry {
	r := NewRegistry()
	r.Register(NewNative())
	r.Register(NewLayout())
	r.Register(NewPdfToText(cfg.OCR.PdfToTextPath))
	if cfg.OCR.MistralKey != "" {
		r.Register(NewMistral(cfg.OCR.MistralKey, cfg.OCR.MistralModel, cfg.OCR.RequestsPerSecond))
	}
	if cfg.LLM.AnthropicKey != "" {
		r.Register(NewLLM(NewAnthropicClient(cfg.LLM.AnthropicKey), cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.OCR.RequestsPerSecond))
	}
	return r
}
