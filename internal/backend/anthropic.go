package backend

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MessageClient is the Anthropic API surface the LLM backend needs.
type MessageClient interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single-turn request with a system prompt.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    string
	User      string
}

// MessageResponse holds the text blocks of a reply.
type MessageResponse struct {
	ID         string
	Text       []string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Log records token usage and its estimated cost for a backend call.
func (u TokenUsage) Log(model string) {
	zap.L().Info("backend: llm token usage",
		zap.String("model", model),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("est_cost_usd", costs.Claude(model, u.InputTokens, u.OutputTokens)),
	)
}

type sdkClient struct {
	client sdk.Client
}

// NewAnthropicClient creates a MessageClient backed by the official SDK.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) MessageClient {
	return &sdkClient{client: sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.User))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	out := &MessageResponse{
		ID:         msg.ID,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, b := range msg.Content {
		if b.Type == "text" {
			out.Text = append(out.Text, b.Text)
		}
	}
	return out
}
