package conversation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"boldestate-backend/internal/logger"
	"boldestate-backend/internal/models"
	"boldestate-backend/internal/services"
)

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	registry := NewRegistry(time.Hour, logger.Discard())
	t.Cleanup(registry.Stop)

	svc := NewService(ServiceOptions{
		Replies: func(id uuid.UUID, profile *services.Profile) Replier {
			return &stubReplier{reply: "Here are Mumbai listings..."}
		},
		Registry:         registry,
		Publisher:        pub,
		Renderer:         paragraphRenderer{},
		DefaultVariant:   models.VariantVoice,
		UtteranceTimeout: time.Second,
		Log:              logger.Discard(),
	})
	return svc, pub
}

func (p *recordingPublisher) Last(typ string) (models.WSMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].Type == typ {
			return p.msgs[i], true
		}
	}
	return models.WSMessage{}, false
}

func (p *recordingPublisher) Count(typ string) int {
	n := 0
	for _, t := range p.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

func TestService_CreateVariants(t *testing.T) {
	both := models.SpeechCapabilities{Recognition: true, Synthesis: true}

	tests := []struct {
		name          string
		variant       string
		caps          models.SpeechCapabilities
		wantVariant   string
		wantSpeech    bool
		wantQuickReps int
	}{
		{"default is voice", "", both, models.VariantVoice, true, 4},
		{"voice without synthesis", models.VariantVoice, models.SpeechCapabilities{Recognition: true}, models.VariantVoice, false, 4},
		{"classic never speaks", models.VariantClassic, both, models.VariantClassic, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			c, err := svc.Create(tt.variant, tt.caps)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			state := c.State()
			if state.Variant != tt.wantVariant {
				t.Errorf("expected variant %q, got %q", tt.wantVariant, state.Variant)
			}
			if state.SpeechSupported != tt.wantSpeech {
				t.Errorf("expected speech supported %v, got %v", tt.wantSpeech, state.SpeechSupported)
			}
			if len(state.QuickReplies) != tt.wantQuickReps {
				t.Errorf("expected %d quick replies, got %d", tt.wantQuickReps, len(state.QuickReplies))
			}
			if len(state.Messages) == 0 || state.Messages[0].Role != models.RoleAssistant {
				t.Error("expected the welcome message first")
			}
			if got, err := svc.Get(c.ID()); err != nil || got != c {
				t.Errorf("expected conversation registered, got %v", err)
			}
		})
	}
}

func TestService_CreateRejectsUnknownVariant(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create("holographic", models.SpeechCapabilities{})

	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["variant"]; !ok {
		t.Errorf("expected variant field error, got %v", ve.Fields)
	}
}

func TestService_Close(t *testing.T) {
	svc, _ := newTestService(t)
	c, _ := svc.Create("", models.SpeechCapabilities{})

	if err := svc.Close(c.ID()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := svc.Get(c.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
	if err := svc.Close(c.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second close, got %v", err)
	}
}

func TestService_DictationOverWebSocketFrames(t *testing.T) {
	svc, pub := newTestService(t)
	c, _ := svc.Create(models.VariantVoice, models.SpeechCapabilities{Recognition: true, Synthesis: true})

	if started, err := c.StartDictation(); err != nil || !started {
		t.Fatalf("expected dictation to start, got %v %v", started, err)
	}
	if pub.Count(models.WSSpeechCaptureStart) != 1 {
		t.Fatalf("expected capture_start command, got %v", pub.Types())
	}

	frame := []byte(`{"type":"speech.capture_result","payload":{"transcript":"Villas in Goa"}}`)
	if err := svc.HandleClientMessage(c.ID(), frame); err != nil {
		t.Fatalf("HandleClientMessage: %v", err)
	}

	state := c.State()
	if state.PendingInput != "Villas in Goa" {
		t.Errorf("expected transcript staged, got %q", state.PendingInput)
	}
	if state.IsCapturingSpeech {
		t.Error("expected capture idle")
	}
	if pub.Count(models.WSSpeechCaptureStop) != 1 {
		t.Errorf("expected capture_stop command, got %v", pub.Types())
	}
}

func TestService_ReadAloudOverWebSocketFrames(t *testing.T) {
	svc, pub := newTestService(t)
	c, _ := svc.Create(models.VariantVoice, models.SpeechCapabilities{Recognition: true, Synthesis: true})

	if started, err := c.ToggleReadAloud(1); err != nil || !started {
		t.Fatalf("expected playback to start, got %v %v", started, err)
	}
	waitFor(t, func() bool { return pub.Count(models.WSSpeechUtterance) == 1 })

	msg, _ := pub.Last(models.WSSpeechUtterance)
	u := msg.Payload.(models.Utterance)
	if u.Rate != 0.8 || u.Pitch != 1 || u.Volume != 0.8 || u.Lang != "en-US" {
		t.Errorf("unexpected voice settings: %+v", u)
	}

	ack := []byte(fmt.Sprintf(`{"type":"speech.utterance_end","payload":{"seq":%d}}`, u.Seq))
	if err := svc.HandleClientMessage(c.ID(), ack); err != nil {
		t.Fatalf("HandleClientMessage: %v", err)
	}
	waitFor(t, func() bool { return pub.Count(models.WSSpeechUtterance) == 2 })

	if started, _ := c.ToggleReadAloud(1); started {
		t.Error("expected toggle while speaking to stop playback")
	}
	waitFor(t, func() bool { return !c.State().IsPlayingSpeech })
	if pub.Count(models.WSSpeechCancel) == 0 {
		t.Error("expected a speech.cancel command")
	}
}

func TestService_HandleClientMessageErrors(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.HandleClientMessage(uuid.New(), []byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
	if err := svc.HandleClientMessage(uuid.New(), []byte(`{"type":"speech.capture_end"}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
