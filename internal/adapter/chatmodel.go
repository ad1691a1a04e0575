// Package adapter exposes the chat API as a conversational chat model: it turns
// a message history into one API call and the API's reply into an AI message.
package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aigc-bridge/internal/auth"
	"aigc-bridge/internal/llm"
	"aigc-bridge/internal/metrics"
)

// FallbackReply is returned as the AI message content whenever the call fails.
const FallbackReply = "(Error: Unable to get response from BoschAI.)"

const (
	llmTypeOAuth  = "bosch_ai_llm"
	llmTypeAPIKey = "bosch_ai_llm_internal"
)

// Generation is a single generated AI message plus response metadata.
type Generation struct {
	Message Message
	Info    map[string]any
}

// Result holds the generations of one Generate call. It always has exactly one.
type Result struct {
	Generations []Generation
}

// ChatModel adapts an llm.Client to a message-in, message-out chat model.
// All fields are set at construction and only read afterwards.
type ChatModel struct {
	client    llm.Client
	logger    *zap.Logger
	reasoning ReasoningFormat
	llmType   string
}

type Option func(*ChatModel)

// WithReasoningFormat sets how reasoning_content is rendered.
func WithReasoningFormat(f ReasoningFormat) Option {
	return func(m *ChatModel) { m.reasoning = f }
}

// WithLLMType overrides the identifier reported by LLMType.
func WithLLMType(name string) Option {
	return func(m *ChatModel) { m.llmType = name }
}

// New wraps an existing client.
func New(client llm.Client, logger *zap.Logger, opts ...Option) *ChatModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &ChatModel{
		client:    client,
		logger:    logger.Named("adapter"),
		reasoning: DefaultReasoningFormat(),
		llmType:   llmTypeOAuth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewOAuth builds a chat model for the primary backend, authenticating with
// the client-credentials grant on every call.
func NewOAuth(creds auth.ClientCredentials, cfg llm.Config, logger *zap.Logger, opts ...Option) (*ChatModel, error) {
	cfg.Backend = llm.BackendOAuth
	cfg = cfg.WithDefaults()
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = llm.NewHTTPClient(cfg, logger)
	}

	tokens, err := auth.NewOAuthProvider(creds, cfg.HTTPClient, logger)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(cfg, tokens, logger)
	if err != nil {
		return nil, err
	}

	return New(client, logger, append([]Option{WithLLMType(llmTypeOAuth)}, opts...)...), nil
}

// NewAPIKey builds a chat model for the alternate backend using a static key.
func NewAPIKey(apiKey string, cfg llm.Config, logger *zap.Logger, opts ...Option) (*ChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("invalid config: api key is required")
	}
	cfg.Backend = llm.BackendAPIKey

	client, err := llm.NewClient(cfg, auth.StaticKey(apiKey), logger)
	if err != nil {
		return nil, err
	}

	return New(client, logger, append([]Option{WithLLMType(llmTypeAPIKey)}, opts...)...), nil
}

// LLMType identifies the backend flavour of this model.
func (m *ChatModel) LLMType() string {
	return m.llmType
}

// Generate sends messages to the API and returns its reply. It never fails:
// any client error is logged and the reply content becomes FallbackReply.
func (m *ChatModel) Generate(ctx context.Context, messages []Message) *Result {
	start := time.Now()

	raw, err := m.client.Chat(ctx, &llm.ChatRequest{Messages: ToWire(messages)})
	if err != nil {
		metrics.FallbackRepliesTotal.Inc()
		m.logger.Error("chat call failed, replying with fallback",
			zap.Int("message_count", len(messages)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return &Result{Generations: []Generation{{
			Message: AIMessage(FallbackReply),
			Info:    map[string]any{"error": err.Error()},
		}}}
	}

	reply := parseReply(raw)
	info := map[string]any{"shape": string(reply.shape)}
	if reply.shape == shapeMessages {
		info["msg"] = reply.msg
		info["code"] = reply.code
	}

	m.logger.Debug("chat reply parsed",
		zap.String("shape", string(reply.shape)),
		zap.Any("msg", reply.msg),
		zap.Any("code", reply.code),
		zap.Bool("has_reasoning", reply.reasoning != ""),
		zap.Duration("duration", time.Since(start)),
	)

	return &Result{Generations: []Generation{{
		Message: AIMessage(reply.render(m.reasoning)),
		Info:    info,
	}}}
}

// Invoke is Generate reduced to the single AI message.
func (m *ChatModel) Invoke(ctx context.Context, messages []Message) Message {
	return m.Generate(ctx, messages).Generations[0].Message
}

// Close releases the underlying client's idle connections.
func (m *ChatModel) Close() error {
	if closer, ok := m.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
