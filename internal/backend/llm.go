package backend

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/resilience"
)

const (
	defaultLLMModel     = "claude-haiku-4-5-20251001"
	defaultLLMMaxTokens = 4096
	// llmMaxInputChars bounds the text sent per request.
	llmMaxInputChars = 60_000
)

const llmSystemPrompt = `You extract tables from document text.
Reply with JSON only, no prose, in the form:
{"tables":[{"page":1,"rows":[["cell","cell"],["cell","cell"]]}]}
Pages in the input are separated by form feed characters; number them from 1.
Copy cell text exactly as written, including currency symbols and separators.
If there are no tables reply {"tables":[]}.`

// LLM asks an Anthropic model to transcribe the tables in the text layer.
type LLM struct {
	client    MessageClient
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewLLM creates the backend. rps <= 0 disables rate limiting.
func NewLLM(client MessageClient, model string, maxTokens int64, rps float64) *LLM {
	if model == "" {
		model = defaultLLMModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultLLMMaxTokens
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(LLMTables)
	return &LLM{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     retry,
	}
}

func (l *LLM) Name() string { return LLMTables }

type llmTables struct {
	Tables []struct {
		Page int        `json:"page"`
		Rows [][]string `json:"rows"`
	} `json:"tables"`
}

func (l *LLM) Extract(ctx context.Context, doc *model.Document, t model.Tunables) (*Result, error) {
	text := doc.Text(t.MaxPages)
	if strings.TrimSpace(text) == "" {
		return nil, eris.Wrap(ErrNoTables, "llm: document has no text layer")
	}
	text = truncateText(text, llmMaxInputChars)

	req := MessageRequest{Model: l.model, MaxTokens: l.maxTokens, System: llmSystemPrompt, User: text}
	resp, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*MessageResponse, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm: rate limit wait")
		}
		return l.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: create message")
	}
	resp.Usage.Log(l.model)

	parsed, err := parseLLMTables(strings.Join(resp.Text, ""))
	if err != nil {
		return nil, err
	}
	var tables []model.Table
	for _, pt := range parsed.Tables {
		if len(pt.Rows) == 0 {
			continue
		}
		tables = append(tables, model.Table{Page: pt.Page, Source: LLMTables, Rows: pt.Rows})
	}
	return newResult(LLMTables, tables, "")
}

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseLLMTables decodes the outermost JSON object in the reply, ignoring
// any prose or code fences around it.
func parseLLMTables(reply string) (*llmTables, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, eris.New("llm: reply contains no JSON object")
	}
	var out llmTables
	if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "llm: unmarshal tables")
	}
	return &out, nil
}
