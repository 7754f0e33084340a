package speech

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"boldestate-backend/internal/models"
)

const (
	defaultShortPause = 300 * time.Millisecond
	defaultLongPause  = 600 * time.Millisecond
)

// Recognizer is the platform speech-to-text capability. Results arrive
// asynchronously through the Bridge's Handle* methods.
type Recognizer interface {
	Start() error
	Stop() error
}

// Synthesizer is the platform text-to-speech capability.
type Synthesizer interface {
	// Speak plays one utterance and blocks until it has finished, failed,
	// or ctx is done.
	Speak(ctx context.Context, u models.Utterance) error
	// CancelAll drops everything queued or playing on the platform.
	CancelAll()
}

// Voice holds the fixed playback parameters.
type Voice struct {
	Rate   float64
	Pitch  float64
	Volume float64
	Lang   string
}

// DefaultVoice is slightly slowed and slightly quieter than the platform default.
var DefaultVoice = Voice{Rate: 0.8, Pitch: 1, Volume: 0.8, Lang: "en-US"}

// Status mirrors the two independent state machines.
type Status struct {
	Listening bool
	Speaking  bool
}

// Bridge owns one capture session and one playback queue on a speech
// platform. Only one Bridge may drive a given platform at a time.
type Bridge struct {
	recognizer Recognizer
	synth      Synthesizer
	voice      Voice
	shortPause time.Duration
	longPause  time.Duration
	log        logrus.FieldLogger

	mu           sync.Mutex
	listening    bool
	onTranscript func(string)
	speaking     bool
	playGen      uint64
	playCancel   context.CancelFunc
	seq          int64
	onChange     func(Status)

	// playMu serializes access to the synthesizer so a cancelled sequence
	// can never slip an utterance in after CancelAll.
	playMu sync.Mutex
}

// NewBridge wraps the given platform capabilities. Either may be nil; the
// bridge is only Supported when both are present.
func NewBridge(recognizer Recognizer, synth Synthesizer, log logrus.FieldLogger) *Bridge {
	return &Bridge{
		recognizer: recognizer,
		synth:      synth,
		voice:      DefaultVoice,
		shortPause: defaultShortPause,
		longPause:  defaultLongPause,
		log:        log,
	}
}

// SetPauses overrides the gap inserted after sentences without and with
// terminal punctuation.
func (b *Bridge) SetPauses(short, long time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shortPause = short
	b.longPause = long
}

// OnStatusChange registers fn to be called, outside the bridge lock, after
// every capture or playback transition.
func (b *Bridge) OnStatusChange(fn func(Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Bridge) Supported() bool {
	return b.recognizer != nil && b.synth != nil
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{Listening: b.listening, Speaking: b.speaking}
}

// ──── Capture ────

// StartCapture moves idle → listening. onTranscript receives the final
// transcript, if one arrives before the session ends.
func (b *Bridge) StartCapture(onTranscript func(string)) bool {
	if !b.Supported() {
		return false
	}

	b.mu.Lock()
	if b.listening {
		b.mu.Unlock()
		return false
	}
	b.listening = true
	b.onTranscript = onTranscript
	b.mu.Unlock()

	if err := b.recognizer.Start(); err != nil {
		b.log.WithError(err).Error("Error starting speech recognition")
		b.mu.Lock()
		b.listening = false
		b.onTranscript = nil
		b.mu.Unlock()
		return false
	}

	b.notify()
	return true
}

// StopCapture ends the session and discards any transcript not yet final.
func (b *Bridge) StopCapture() {
	if !b.endCapture() {
		return
	}
	if err := b.recognizer.Stop(); err != nil {
		b.log.WithError(err).Warn("Error stopping speech recognition")
	}
	b.notify()
}

// HandleCaptureStarted acknowledges the platform's start event.
func (b *Bridge) HandleCaptureStarted() {
	b.log.Debug("Speech recognition started")
}

// HandleTranscript delivers a final transcript and returns capture to idle.
func (b *Bridge) HandleTranscript(transcript string) {
	b.mu.Lock()
	if !b.listening {
		b.mu.Unlock()
		return
	}
	deliver := b.onTranscript
	b.listening = false
	b.onTranscript = nil
	b.mu.Unlock()

	if err := b.recognizer.Stop(); err != nil {
		b.log.WithError(err).Warn("Error stopping speech recognition")
	}
	b.notify()

	if deliver != nil {
		deliver(transcript)
	}
}

// HandleCaptureError logs the platform error and returns capture to idle.
func (b *Bridge) HandleCaptureError(reason string) {
	if !b.endCapture() {
		return
	}
	b.log.WithField("error", reason).Error("Speech recognition error")
	b.notify()
}

// HandleCaptureEnd returns capture to idle when the platform ends the session.
func (b *Bridge) HandleCaptureEnd() {
	if b.endCapture() {
		b.notify()
	}
}

func (b *Bridge) endCapture() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.listening {
		return false
	}
	b.listening = false
	b.onTranscript = nil
	return true
}

// ──── Playback ────

// Speak plays sentences in order. Any sequence already playing is
// cancelled first. An empty sequence is a no-op.
func (b *Bridge) Speak(sentences []string) bool {
	if !b.Supported() || len(sentences) == 0 {
		return false
	}

	b.mu.Lock()
	wasSpeaking := b.speaking
	if b.playCancel != nil {
		b.playCancel()
	}
	b.playGen++
	gen := b.playGen
	ctx, cancel := context.WithCancel(context.Background())
	b.playCancel = cancel
	b.speaking = true
	b.mu.Unlock()

	b.playMu.Lock()
	b.synth.CancelAll()
	b.playMu.Unlock()

	go b.play(ctx, gen, append([]string(nil), sentences...))

	if !wasSpeaking {
		b.notify()
	}
	return true
}

// Cancel stops playback mid-utterance and discards the rest of the queue.
func (b *Bridge) Cancel() bool {
	if !b.Supported() {
		return false
	}

	b.mu.Lock()
	if !b.speaking {
		b.mu.Unlock()
		return false
	}
	b.playCancel()
	b.playCancel = nil
	b.playGen++
	b.speaking = false
	b.mu.Unlock()

	b.playMu.Lock()
	b.synth.CancelAll()
	b.playMu.Unlock()

	b.notify()
	return true
}

// Close cancels playback and capture.
func (b *Bridge) Close() {
	b.Cancel()
	b.StopCapture()
}

func (b *Bridge) play(ctx context.Context, gen uint64, sentences []string) {
	defer b.finishPlayback(gen)

	for i, sentence := range sentences {
		if err := b.speakOne(ctx, sentence); err != nil {
			if ctx.Err() == nil {
				b.log.WithError(err).Error("Speech synthesis error")
			}
			return
		}

		if i == len(sentences)-1 {
			return
		}

		b.mu.Lock()
		pause := b.shortPause
		if EndsSentence(sentence) {
			pause = b.longPause
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}

func (b *Bridge) speakOne(ctx context.Context, sentence string) error {
	b.playMu.Lock()
	defer b.playMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.seq++
	u := models.Utterance{
		Seq:    b.seq,
		Text:   sentence,
		Rate:   b.voice.Rate,
		Pitch:  b.voice.Pitch,
		Volume: b.voice.Volume,
		Lang:   b.voice.Lang,
	}
	b.mu.Unlock()

	return b.synth.Speak(ctx, u)
}

func (b *Bridge) finishPlayback(gen uint64) {
	b.mu.Lock()
	if b.playGen != gen {
		b.mu.Unlock()
		return
	}
	if b.playCancel != nil {
		b.playCancel()
		b.playCancel = nil
	}
	b.speaking = false
	b.mu.Unlock()

	b.notify()
}

func (b *Bridge) notify() {
	b.mu.Lock()
	fn := b.onChange
	status := Status{Listening: b.listening, Speaking: b.speaking}
	b.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}
