package models

import (
	"time"

	"github.com/google/uuid"
)

// Exchange outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeFallback      = "fallback"
	OutcomeNotConfigured = "not_configured"
)

// Exchange is one user text → reply pair as written to the exchange log.
type Exchange struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Variant        string    `json:"variant"`
	UserText       string    `json:"user_text"`
	Reply          string    `json:"reply"`
	Outcome        string    `json:"outcome"`
	ErrorMessage   *string   `json:"error_message"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
