package handlers

import (
	"context"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type conversationCounter interface {
	Len() int
}

type HealthHandler struct {
	redis         pinger
	conversations conversationCounter
	geminiReady   bool
}

func NewHealthHandler(redis pinger, conversations conversationCounter, geminiReady bool) *HealthHandler {
	return &HealthHandler{redis: redis, conversations: conversations, geminiReady: geminiReady}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":               status,
		"gemini_configured":    h.geminiReady,
		"active_conversations": h.conversations.Len(),
	})
}
