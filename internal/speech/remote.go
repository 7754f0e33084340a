package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"boldestate-backend/internal/models"
)

var (
	ErrUtteranceCancelled = errors.New("utterance cancelled")
	ErrUtteranceTimeout   = errors.New("utterance timed out")
)

// Sender delivers a command to the browser that hosts the speech platform.
type Sender interface {
	Send(ctx context.Context, msg models.WSMessage) error
}

type SenderFunc func(ctx context.Context, msg models.WSMessage) error

func (f SenderFunc) Send(ctx context.Context, msg models.WSMessage) error { return f(ctx, msg) }

// RemoteRecognizer drives the browser's speech recognition.
type RemoteRecognizer struct {
	sender Sender
}

func NewRemoteRecognizer(sender Sender) *RemoteRecognizer {
	return &RemoteRecognizer{sender: sender}
}

func (r *RemoteRecognizer) Start() error {
	return r.sender.Send(context.Background(), models.WSMessage{Type: models.WSSpeechCaptureStart})
}

func (r *RemoteRecognizer) Stop() error {
	return r.sender.Send(context.Background(), models.WSMessage{Type: models.WSSpeechCaptureStop})
}

// RemoteSynthesizer drives the browser's speech synthesis. Speak blocks
// until the browser acknowledges the utterance by sequence number.
type RemoteSynthesizer struct {
	sender  Sender
	timeout time.Duration
	log     logrus.FieldLogger

	mu      sync.Mutex
	waiting map[int64]chan error
}

func NewRemoteSynthesizer(sender Sender, timeout time.Duration, log logrus.FieldLogger) *RemoteSynthesizer {
	return &RemoteSynthesizer{
		sender:  sender,
		timeout: timeout,
		log:     log,
		waiting: make(map[int64]chan error),
	}
}

func (s *RemoteSynthesizer) Speak(ctx context.Context, u models.Utterance) error {
	done := make(chan error, 1)

	s.mu.Lock()
	s.waiting[u.Seq] = done
	s.mu.Unlock()
	defer s.forget(u.Seq)

	if err := s.sender.Send(ctx, models.WSMessage{Type: models.WSSpeechUtterance, Payload: u}); err != nil {
		return fmt.Errorf("send utterance: %w", err)
	}

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrUtteranceTimeout
	}
}

// CancelAll fails every pending Speak. Waiters are released even when the
// cancel command cannot reach the browser.
func (s *RemoteSynthesizer) CancelAll() {
	if err := s.sender.Send(context.Background(), models.WSMessage{Type: models.WSSpeechCancel}); err != nil {
		s.log.WithError(err).Warn("Failed to send speech cancel")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for seq, done := range s.waiting {
		done <- ErrUtteranceCancelled
		delete(s.waiting, seq)
	}
}

// UtteranceEnded resolves the pending Speak for seq.
func (s *RemoteSynthesizer) UtteranceEnded(seq int64) {
	s.resolve(seq, nil)
}

// UtteranceFailed fails the pending Speak for seq.
func (s *RemoteSynthesizer) UtteranceFailed(seq int64, reason string) {
	s.resolve(seq, fmt.Errorf("utterance %d failed: %s", seq, reason))
}

func (s *RemoteSynthesizer) resolve(seq int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done, ok := s.waiting[seq]; ok {
		done <- err
		delete(s.waiting, seq)
	}
}

func (s *RemoteSynthesizer) forget(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiting, seq)
}
