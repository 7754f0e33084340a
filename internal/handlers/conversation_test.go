package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"boldestate-backend/internal/conversation"
	"boldestate-backend/internal/logger"
	"boldestate-backend/internal/models"
	"boldestate-backend/internal/services"
)

type stubReplier struct {
	release chan struct{}
}

func (s *stubReplier) GetReply(ctx context.Context, userText string) string {
	if s.release != nil {
		<-s.release
	}
	return "Here are Mumbai listings..."
}

func (s *stubReplier) TechnicalIssue() string { return "Technical Issue" }

type nopPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *nopPublisher) Publish(ctx context.Context, id uuid.UUID, msg models.WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return nil
}

type stubTokens struct{}

func (stubTokens) GenerateConversationToken(id uuid.UUID, variant string) (string, error) {
	return "token-" + id.String(), nil
}

func newTestHandler(t *testing.T, replier conversation.Replier) (*ConversationHandler, *conversation.Service) {
	t.Helper()
	registry := conversation.NewRegistry(time.Hour, logger.Discard())
	t.Cleanup(registry.Stop)

	svc := conversation.NewService(conversation.ServiceOptions{
		Replies: func(id uuid.UUID, profile *services.Profile) conversation.Replier {
			return replier
		},
		Registry:         registry,
		Publisher:        &nopPublisher{},
		DefaultVariant:   models.VariantVoice,
		UtteranceTimeout: time.Second,
		Log:              logger.Discard(),
	})
	return NewConversationHandler(svc, stubTokens{}, logger.Discard()), svc
}

func newRequest(method, path string, body interface{}, params map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func createConversation(t *testing.T, h *ConversationHandler, body interface{}) models.CreateConversationResponse {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Create(rr, newRequest(http.MethodPost, "/api/v1/conversations", body, nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var resp models.CreateConversationResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp
}

func TestConversationHandler_Create(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})

	resp := createConversation(t, h, nil)

	if resp.Token != "token-"+resp.Conversation.ID.String() {
		t.Errorf("unexpected token %q", resp.Token)
	}
	if resp.Conversation.Variant != models.VariantVoice {
		t.Errorf("expected default voice variant, got %q", resp.Conversation.Variant)
	}
	if len(resp.Conversation.QuickReplies) != 4 {
		t.Errorf("expected 4 quick replies, got %v", resp.Conversation.QuickReplies)
	}
	if resp.Conversation.SpeechSupported {
		t.Error("expected speech unsupported without browser capabilities")
	}
}

func TestConversationHandler_CreateValidation(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})

	rr := httptest.NewRecorder()
	h.Create(rr, newRequest(http.MethodPost, "/api/v1/conversations", map[string]string{"variant": "hologram"}, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Fields["variant"] == "" {
		t.Errorf("expected variant field error, got %+v", apiErr)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", bytes.NewBufferString("{"))
	rr = httptest.NewRecorder()
	h.Create(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for malformed body, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestConversationHandler_PostMessage(t *testing.T) {
	replier := &stubReplier{release: make(chan struct{})}
	h, svc := newTestHandler(t, replier)
	created := createConversation(t, h, map[string]string{"variant": models.VariantClassic})
	params := map[string]string{"id": created.Conversation.ID.String()}
	path := "/api/v1/conversations/" + created.Conversation.ID.String() + "/messages"

	blank := "   "
	rr := httptest.NewRecorder()
	h.PostMessage(rr, newRequest(http.MethodPost, path, models.ChatRequest{Text: &blank}, params))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for blank text, got %d", http.StatusBadRequest, rr.Code)
	}

	text := "Show Mumbai properties"
	rr = httptest.NewRecorder()
	h.PostMessage(rr, newRequest(http.MethodPost, path, models.ChatRequest{Text: &text}, params))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}
	var state models.ConversationState
	json.NewDecoder(rr.Body).Decode(&state)
	if !state.IsAwaitingReply {
		t.Error("expected awaiting flag in accepted state")
	}

	rr = httptest.NewRecorder()
	h.PostMessage(rr, newRequest(http.MethodPost, path, models.ChatRequest{Text: &text}, params))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d while awaiting, got %d", http.StatusConflict, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.PostMessage(rr, newRequest(http.MethodPost, path, models.ChatRequest{Text: &blank}, params))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for blank text while awaiting, got %d", http.StatusBadRequest, rr.Code)
	}

	close(replier.release)
	c, _ := svc.Get(created.Conversation.ID)
	deadline := time.Now().Add(2 * time.Second)
	for c.State().IsAwaitingReply && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	final := c.State()
	if n := len(final.Messages); n != 3 {
		t.Fatalf("expected welcome, question and reply, got %d messages", n)
	}
	if final.Messages[2].Content != "Here are Mumbai listings..." {
		t.Errorf("unexpected reply %q", final.Messages[2].Content)
	}
}

func TestTranslateError_SubmitRejections(t *testing.T) {
	var conflict *services.ConflictError
	if err := translateError(conversation.ErrAwaitingReply); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError for a pending reply, got %T", err)
	}

	var invalid *services.ValidationError
	if err := translateError(conversation.ErrBlankMessage); !errors.As(err, &invalid) {
		t.Errorf("expected ValidationError for a blank message, got %T", err)
	} else if invalid.Fields["text"] == "" {
		t.Errorf("expected a text field error, got %v", invalid.Fields)
	}

	var missing *services.NotFoundError
	if err := translateError(conversation.ErrClosed); !errors.As(err, &missing) {
		t.Errorf("expected NotFoundError for a closed conversation, got %T", err)
	}
}

func TestConversationHandler_SubmitStagedInput(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})
	created := createConversation(t, h, nil)
	id := created.Conversation.ID.String()
	params := map[string]string{"id": id}

	rr := httptest.NewRecorder()
	h.PickQuickReply(rr, newRequest(http.MethodPost, "/api/v1/conversations/"+id+"/quick-replies", models.InputRequest{Text: ""}, params))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for empty quick reply, got %d", http.StatusBadRequest, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.PickQuickReply(rr, newRequest(http.MethodPost, "/api/v1/conversations/"+id+"/quick-replies", models.InputRequest{Text: "Connect with agent"}, params))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var state models.ConversationState
	json.NewDecoder(rr.Body).Decode(&state)
	if state.PendingInput != "Connect with agent" || state.IsAwaitingReply {
		t.Errorf("expected staged input without submission, got %+v", state)
	}
	if len(state.QuickReplies) != 0 {
		t.Errorf("expected quick replies hidden, got %v", state.QuickReplies)
	}

	rr = httptest.NewRecorder()
	h.PostMessage(rr, newRequest(http.MethodPost, "/api/v1/conversations/"+id+"/messages", nil, params))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected staged input accepted, got %d", rr.Code)
	}
}

func TestConversationHandler_SetInput(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})
	created := createConversation(t, h, nil)
	id := created.Conversation.ID.String()

	rr := httptest.NewRecorder()
	h.SetInput(rr, newRequest(http.MethodPut, "/api/v1/conversations/"+id+"/input", models.InputRequest{Text: "Villas in"}, map[string]string{"id": id}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var state models.ConversationState
	json.NewDecoder(rr.Body).Decode(&state)
	if state.PendingInput != "Villas in" {
		t.Errorf("expected pending input, got %q", state.PendingInput)
	}
}

func TestConversationHandler_NotFound(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})

	rr := httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/api/v1/conversations/x", nil, map[string]string{"id": "not-a-uuid"}))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for invalid id, got %d", http.StatusBadRequest, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/api/v1/conversations/x", nil, map[string]string{"id": uuid.New().String()}))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status %d for unknown id, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestConversationHandler_Delete(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})
	created := createConversation(t, h, nil)
	params := map[string]string{"id": created.Conversation.ID.String()}

	rr := httptest.NewRecorder()
	h.Delete(rr, newRequest(http.MethodDelete, "/api/v1/conversations/x", nil, params))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/api/v1/conversations/x", nil, params))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestConversationHandler_SpeechRoutes(t *testing.T) {
	h, _ := newTestHandler(t, &stubReplier{})

	classic := createConversation(t, h, map[string]interface{}{
		"variant": models.VariantClassic,
		"speech":  map[string]bool{"recognition": true, "synthesis": true},
	})
	rr := httptest.NewRecorder()
	h.StartDictation(rr, newRequest(http.MethodPost, "/dictation/start", nil, map[string]string{"id": classic.Conversation.ID.String()}))
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status %d for classic dictation, got %d", http.StatusConflict, rr.Code)
	}

	voice := createConversation(t, h, map[string]interface{}{
		"variant": models.VariantVoice,
		"speech":  map[string]bool{"recognition": true, "synthesis": true},
	})
	id := voice.Conversation.ID.String()

	rr = httptest.NewRecorder()
	h.StartDictation(rr, newRequest(http.MethodPost, "/dictation/start", nil, map[string]string{"id": id}))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.StartDictation(rr, newRequest(http.MethodPost, "/dictation/start", nil, map[string]string{"id": id}))
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status %d for second start, got %d", http.StatusConflict, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.StopDictation(rr, newRequest(http.MethodPost, "/dictation/stop", nil, map[string]string{"id": id}))
	if rr.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	tests := []struct {
		messageID  string
		wantStatus int
	}{
		{"abc", http.StatusBadRequest},
		{"99", http.StatusNotFound},
		{"1", http.StatusOK},
	}
	for _, tt := range tests {
		rr = httptest.NewRecorder()
		h.ToggleReadAloud(rr, newRequest(http.MethodPost, "/read-aloud", nil, map[string]string{"id": id, "messageID": tt.messageID}))
		if rr.Code != tt.wantStatus {
			t.Errorf("message %s: expected status %d, got %d", tt.messageID, tt.wantStatus, rr.Code)
		}
	}
}
