package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"boldestate-backend/internal/conversation"
	"boldestate-backend/internal/models"
	"boldestate-backend/internal/services"
)

type conversationService interface {
	Create(variant string, caps models.SpeechCapabilities) (*conversation.Controller, error)
	Get(id uuid.UUID) (*conversation.Controller, error)
	Close(id uuid.UUID) error
}

type tokenIssuer interface {
	GenerateConversationToken(conversationID uuid.UUID, variant string) (string, error)
}

type ConversationHandler struct {
	conversations conversationService
	tokens        tokenIssuer
	log           logrus.FieldLogger
}

func NewConversationHandler(conversations conversationService, tokens tokenIssuer, log logrus.FieldLogger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		tokens:        tokens,
		log:           log,
	}
}

// Create opens a conversation for a freshly mounted widget.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateConversationRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	c, err := h.conversations.Create(strings.TrimSpace(req.Variant), req.Speech)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	state := c.State()
	token, err := h.tokens.GenerateConversationToken(state.ID, state.Variant)
	if err != nil {
		h.log.WithError(err).Error("Failed to sign conversation token")
		h.conversations.Close(state.ID)
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateConversationResponse{
		Conversation: state,
		Token:        token,
	})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	if err := h.conversations.Close(id); err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetInput stages what the visitor is typing.
func (h *ConversationHandler) SetInput(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	var req models.InputRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := c.SetInput(req.Text); err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

// PostMessage submits the given text, or the staged input when text is
// omitted. The reply arrives later over the WebSocket.
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	var err error
	if req.Text != nil {
		err = c.Submit(*req.Text)
	} else {
		err = c.SubmitPending()
	}
	if err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}

	writeJSON(w, http.StatusAccepted, c.State())
}

// PickQuickReply stages a suggested question without sending it.
func (h *ConversationHandler) PickQuickReply(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	var req models.InputRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		handleServiceError(w, r, &services.ValidationError{Fields: map[string]string{"text": "Quick reply is required"}})
		return
	}

	if err := c.PickQuickReply(req.Text); err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *ConversationHandler) StartDictation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	started, err := c.StartDictation()
	if err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}
	if !started {
		handleServiceError(w, r, &services.ConflictError{Message: "Dictation is already in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, c.State())
}

func (h *ConversationHandler) StopDictation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := c.StopDictation(); err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

// ToggleReadAloud stops playback if anything is playing, otherwise reads
// the message aloud.
func (h *ConversationHandler) ToggleReadAloud(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid message ID", r))
		return
	}

	playing, err := c.ToggleReadAloud(messageID)
	if err != nil {
		handleServiceError(w, r, translateError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playing":      playing,
		"conversation": c.State(),
	})
}

func (h *ConversationHandler) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid conversation ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func (h *ConversationHandler) load(w http.ResponseWriter, r *http.Request) (*conversation.Controller, bool) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return nil, false
	}
	c, err := h.conversations.Get(id)
	if err != nil {
		handleServiceError(w, r, translateError(err))
		return nil, false
	}
	return c, true
}

func translateError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, conversation.ErrClosed):
		return &services.NotFoundError{Message: "Conversation not found"}
	case errors.Is(err, conversation.ErrMessageNotFound):
		return &services.NotFoundError{Message: "Message not found"}
	case errors.Is(err, conversation.ErrSpeechUnsupported):
		return &services.ConflictError{Message: "Speech is not supported for this conversation"}
	case errors.Is(err, conversation.ErrAwaitingReply):
		return &services.ConflictError{Message: "A reply is still pending"}
	case errors.Is(err, conversation.ErrBlankMessage):
		return &services.ValidationError{Fields: map[string]string{"text": "Message is required"}}
	default:
		return err
	}
}
