package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aigc-bridge/internal/adapter"
	"aigc-bridge/pkg/logging"
)

// ChatModel is the part of adapter.ChatModel the handler needs.
type ChatModel interface {
	Invoke(ctx context.Context, messages []adapter.Message) adapter.Message
	LLMType() string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest carries no model field: the configured model always
// serves the call, so a client-supplied "model" is ignored.
type chatCompletionRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ChatHandler holds dependencies for the /v1/chat/completions endpoint.
type ChatHandler struct {
	Model ChatModel
}

func NewChatHandler(model ChatModel) *ChatHandler {
	return &ChatHandler{Model: model}
}

// ChatCompletion handles POST /v1/chat/completions. Upstream failures still
// produce a 200 with the fallback reply as the assistant message.
func (h *ChatHandler) ChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "messages must not be empty"})
		return
	}

	reply := h.Model.Invoke(ctx, toAdapterMessages(req.Messages))

	modelID := h.Model.LLMType()

	logger.Info("chat_completion",
		zap.String("model_id", modelID),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("fallback", reply.Content == adapter.FallbackReply),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelID,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: reply.Content},
			FinishReason: "stop",
		}},
	})
}

// toAdapterMessages maps OpenAI roles onto message kinds; other roles pass
// through and end up as user turns.
func toAdapterMessages(in []chatMessage) []adapter.Message {
	out := make([]adapter.Message, 0, len(in))
	for _, m := range in {
		var kind adapter.Kind
		switch m.Role {
		case "system":
			kind = adapter.KindSystem
		case "user":
			kind = adapter.KindHuman
		case "assistant":
			kind = adapter.KindAI
		default:
			kind = adapter.Kind(m.Role)
		}
		out = append(out, adapter.Message{Kind: kind, Content: m.Content})
	}
	return out
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
