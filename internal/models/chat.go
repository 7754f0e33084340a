package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. RoleSystemPrompt marks the one-time quick-reply placeholder
// and is never sent to Gemini.
const (
	RoleUser         = "user"
	RoleAssistant    = "assistant"
	RoleSystemPrompt = "systemPrompt"
)

// Widget variants.
const (
	VariantClassic = "classic"
	VariantVoice   = "voice"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is a point-in-time snapshot of one open widget.
type ConversationState struct {
	ID                uuid.UUID     `json:"id"`
	Revision          int64         `json:"revision"`
	Variant           string        `json:"variant"`
	Messages          []ChatMessage `json:"messages"`
	QuickReplies      []string      `json:"quick_replies,omitempty"`
	PendingInput      string        `json:"pending_input"`
	IsAwaitingReply   bool          `json:"is_awaiting_reply"`
	IsCapturingSpeech bool          `json:"is_capturing_speech"`
	IsPlayingSpeech   bool          `json:"is_playing_speech"`
	SpeechSupported   bool          `json:"speech_supported"`
	Closed            bool          `json:"closed,omitempty"`
}

// SpeechCapabilities is what the visitor's browser reported at mount time.
type SpeechCapabilities struct {
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}

// CreateConversationRequest is the payload sent when the widget mounts.
type CreateConversationRequest struct {
	Variant string             `json:"variant"`
	Speech  SpeechCapabilities `json:"speech"`
}

// CreateConversationResponse carries the initial state and the token that
// authorizes all further calls for this conversation.
type CreateConversationResponse struct {
	Conversation ConversationState `json:"conversation"`
	Token        string            `json:"token"`
}

// ChatRequest is the payload sent to the message endpoint. A nil Text
// submits the staged pending input.
type ChatRequest struct {
	Text *string `json:"text"`
}

// InputRequest stages text without sending it.
type InputRequest struct {
	Text string `json:"text"`
}
