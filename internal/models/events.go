package models

// WebSocket message types
const (
	WSConversationUpdated = "conversation.updated"
	WSConversationClosed  = "conversation.closed"

	// Commands sent to the browser speech platform.
	WSSpeechCaptureStart = "speech.capture_start"
	WSSpeechCaptureStop  = "speech.capture_stop"
	WSSpeechUtterance    = "speech.utterance"
	WSSpeechCancel       = "speech.cancel"

	// Events received from the browser speech platform.
	WSSpeechCaptureStarted = "speech.capture_started"
	WSSpeechCaptureResult  = "speech.capture_result"
	WSSpeechCaptureError   = "speech.capture_error"
	WSSpeechCaptureEnd     = "speech.capture_end"
	WSSpeechUtteranceEnd   = "speech.utterance_end"
	WSSpeechUtteranceError = "speech.utterance_error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Utterance is one sentence handed to the browser's speech synthesis.
type Utterance struct {
	Seq    int64   `json:"seq"`
	Text   string  `json:"text"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
	Lang   string  `json:"lang"`
}

// SpeechEvent is the payload of every inbound speech.* message.
type SpeechEvent struct {
	Seq        int64  `json:"seq,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
