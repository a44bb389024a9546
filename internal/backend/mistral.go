package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

var mistralMIME = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Mistral sends the document to the Mistral OCR API and grid-detects
// tables in the returned markdown.
type Mistral struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// NewMistral creates the OCR backend. rps <= 0 disables rate limiting.
func NewMistral(apiKey, model string, rps float64) *Mistral {
	if model == "" {
		model = defaultMistralModel
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(MistralOCR)
	return &Mistral{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
		limiter:  rate.NewLimiter(limit, 1),
		retry:    retry,
	}
}

func (m *Mistral) Name() string { return MistralOCR }

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

func (m *Mistral) Extract(ctx context.Context, doc *model.Document, t model.Tunables) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(doc.Path))
	mime, ok := mistralMIME[ext]
	if !ok {
		return nil, eris.Errorf("mistral: unsupported file type %q", ext)
	}
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "mistral: read %s", doc.Path)
	}

	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	reqDoc := mistralOCRDocument{Type: "document_url", DocumentURL: dataURL}
	if ext != ".pdf" {
		reqDoc = mistralOCRDocument{Type: "image_url", ImageURL: dataURL}
	}
	body, err := json.Marshal(mistralOCRRequest{Model: m.model, Document: reqDoc})
	if err != nil {
		return nil, eris.Wrap(err, "mistral: marshal request")
	}

	resp, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*mistralOCRResponse, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "mistral: rate limit wait")
		}
		return m.call(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("mistral: ocr complete",
		zap.String("document", doc.ID),
		zap.Int("pages", len(resp.Pages)),
		zap.Float64("est_cost_usd", costs.OCR(m.model, len(resp.Pages))),
	)

	var tables []model.Table
	pages := make([]string, 0, len(resp.Pages))
	for i, p := range resp.Pages {
		if t.MaxPages > 0 && i >= t.MaxPages {
			break
		}
		text := p.Markdown
		if t.BackgroundProcessing {
			text = enhanceOCRText(text)
		}
		pages = append(pages, text)
		tables = append(tables, DetectTables(text, p.Index+1, MistralOCR, t)...)
	}
	return newResult(MistralOCR, tables, strings.Join(pages, "\f"))
}

func (m *Mistral) call(ctx context.Context, body []byte) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "mistral: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mistral: api call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mistral: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("mistral", resp.StatusCode, string(respBody))
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "mistral: unmarshal response")
	}
	return &out, nil
}

// enhanceOCRText folds compatibility characters OCR tends to emit (full
// width digits, ligatures, non-breaking spaces) into their plain forms.
func enhanceOCRText(s string) string {
	s = norm.NFKC.String(s)
	return strings.NewReplacer("\u00a0", " ", "\u2007", " ", "\u202f", " ").Replace(s)
}
