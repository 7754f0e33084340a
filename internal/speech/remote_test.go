package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"boldestate-backend/internal/logger"
	"boldestate-backend/internal/models"
)

// recordingSender records every command and fails those of type failOn.
type recordingSender struct {
	mu     sync.Mutex
	sent   []models.WSMessage
	failOn string
}

func (r *recordingSender) Send(ctx context.Context, msg models.WSMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	if r.failOn != "" && msg.Type == r.failOn {
		return errors.New("connection gone")
	}
	return nil
}

func (r *recordingSender) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.sent))
	for i, m := range r.sent {
		types[i] = m.Type
	}
	return types
}

func TestRemoteSynthesizer_ResolvesOnMatchingEnd(t *testing.T) {
	sender := &recordingSender{}
	syn := NewRemoteSynthesizer(sender, time.Second, logger.Discard())

	done := make(chan error, 1)
	go func() {
		done <- syn.Speak(context.Background(), models.Utterance{Seq: 7, Text: "Hello."})
	}()

	waitFor(t, func() bool { return len(sender.Types()) == 1 })
	syn.UtteranceEnded(6)
	syn.UtteranceEnded(7)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after utterance_end")
	}

	if sender.Types()[0] != models.WSSpeechUtterance {
		t.Errorf("expected utterance command, got %v", sender.Types())
	}
}

func TestRemoteSynthesizer_Failure(t *testing.T) {
	sender := &recordingSender{}
	syn := NewRemoteSynthesizer(sender, time.Second, logger.Discard())

	done := make(chan error, 1)
	go func() {
		done <- syn.Speak(context.Background(), models.Utterance{Seq: 1, Text: "Hello."})
	}()

	waitFor(t, func() bool { return len(sender.Types()) == 1 })
	syn.UtteranceFailed(1, "interrupted")

	if err := <-done; err == nil {
		t.Fatal("expected error for failed utterance")
	}
}

func TestRemoteSynthesizer_CancelAllUnblocks(t *testing.T) {
	sender := &recordingSender{}
	syn := NewRemoteSynthesizer(sender, time.Minute, logger.Discard())

	done := make(chan error, 1)
	go func() {
		done <- syn.Speak(context.Background(), models.Utterance{Seq: 3, Text: "Hello."})
	}()

	waitFor(t, func() bool { return len(sender.Types()) == 1 })
	syn.CancelAll()

	if err := <-done; !errors.Is(err, ErrUtteranceCancelled) {
		t.Fatalf("expected ErrUtteranceCancelled, got %v", err)
	}
	types := sender.Types()
	if types[len(types)-1] != models.WSSpeechCancel {
		t.Errorf("expected cancel command to be sent, got %v", types)
	}
}

func TestRemoteSynthesizer_CancelAllSendFailure(t *testing.T) {
	sender := &recordingSender{failOn: models.WSSpeechCancel}
	log, hook := test.NewNullLogger()
	syn := NewRemoteSynthesizer(sender, time.Minute, log)

	done := make(chan error, 1)
	go func() {
		done <- syn.Speak(context.Background(), models.Utterance{Seq: 4, Text: "Hello."})
	}()

	waitFor(t, func() bool { return len(sender.Types()) == 1 })
	syn.CancelAll()

	if err := <-done; !errors.Is(err, ErrUtteranceCancelled) {
		t.Fatalf("expected waiter released with ErrUtteranceCancelled, got %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning for the failed cancel, got %+v", entry)
	}
	if entry.Data[logrus.ErrorKey] == nil {
		t.Error("expected the send error attached to the warning")
	}
}

func TestRemoteSynthesizer_Timeout(t *testing.T) {
	syn := NewRemoteSynthesizer(&recordingSender{}, 10*time.Millisecond, logger.Discard())

	err := syn.Speak(context.Background(), models.Utterance{Seq: 1, Text: "Hello."})
	if !errors.Is(err, ErrUtteranceTimeout) {
		t.Fatalf("expected ErrUtteranceTimeout, got %v", err)
	}
}

func TestRemoteRecognizer_Commands(t *testing.T) {
	sender := &recordingSender{}
	rec := NewRemoteRecognizer(sender)

	rec.Start()
	rec.Stop()

	types := sender.Types()
	if len(types) != 2 || types[0] != models.WSSpeechCaptureStart || types[1] != models.WSSpeechCaptureStop {
		t.Fatalf("unexpected commands: %v", types)
	}
}
