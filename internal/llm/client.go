package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aigc-bridge/internal/metrics"
)

const maxErrorBody = 512 * 1024

// Chat fetches a credential, posts one chat request and decodes the reply body.
// Nothing is retried.
func (c *client) Chat(ctx context.Context, req *ChatRequest) (json.RawMessage, error) {
	start := time.Now()

	if req == nil {
		return nil, errors.New("llmclient: request is nil")
	}

	// Validate request
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("llmclient: invalid request: %w", err)
	}

	payload := c.buildPayload(req)
	backend := string(c.cfg.Backend)
	requestID := uuid.NewString()

	logger := c.logger.With(
		zap.String("backend", backend),
		zap.String("model", payload.Model),
		zap.String("request_id", requestID),
	)
	logger.Debug("llm request starting",
		zap.Int("message_count", len(payload.Messages)),
	)

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		metrics.ObserveUpstream(backend, payload.Model, "token_error", time.Since(start))
		return nil, fmt.Errorf("llmclient: acquire token: %w", err)
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal request: %w", err)
	}

	timeout := TimeoutFor(payload.Model)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("llmclient: build HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveUpstream(backend, payload.Model, "error", time.Since(start))
		logger.Error("llm request failed",
			zap.Duration("timeout", timeout),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("llmclient: send request: %w", err)
	}
	defer resp.Body.Close()

	// Handle non-2xx responses
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.ObserveUpstream(backend, payload.Model, "http_error", time.Since(start))
		logger.Error("llm upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 200),
		}
	}

	// The apikey gateway may chunk its body; either way it is one JSON document.
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		metrics.ObserveUpstream(backend, payload.Model, "error", time.Since(start))
		return nil, fmt.Errorf("llmclient: decode upstream response: %w", err)
	}

	metrics.ObserveUpstream(backend, payload.Model, "ok", time.Since(start))
	logger.Info("llm request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return raw, nil
}

func (c *client) buildPayload(req *ChatRequest) chatPayload {
	messages := req.Messages
	if messages == nil {
		messages = []Message{}
	}
	p := chatPayload{
		Messages:    messages,
		Model:       c.cfg.Model,
		Temperature: *c.cfg.Temperature,
	}
	if req.Model != "" {
		p.Model = req.Model
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if c.cfg.Backend == BackendOAuth {
		p.TopK = c.cfg.TopK
		p.TopP = c.cfg.TopP
	}
	return p
}
