package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"boldestate-backend/internal/models"
	"boldestate-backend/internal/speech"
)

const publishTimeout = 5 * time.Second

var (
	ErrClosed            = errors.New("conversation is closed")
	ErrMessageNotFound   = errors.New("message not found")
	ErrSpeechUnsupported = errors.New("speech is not supported for this conversation")
	ErrBlankMessage      = errors.New("message is blank")
	ErrAwaitingReply     = errors.New("a reply is still pending")
)

// Replier produces the assistant's answer. GetReply is expected to always
// return a usable string.
type Replier interface {
	GetReply(ctx context.Context, userText string) string
	TechnicalIssue() string
}

// Publisher pushes messages to every widget connection of a conversation.
type Publisher interface {
	Publish(ctx context.Context, conversationID uuid.UUID, msg models.WSMessage) error
}

// Renderer turns assistant markdown into display HTML.
type Renderer interface {
	HTML(markdown string) string
}

// UtteranceAcknowledger receives playback acknowledgements from the browser.
type UtteranceAcknowledger interface {
	UtteranceEnded(seq int64)
	UtteranceFailed(seq int64, reason string)
}

type Config struct {
	ID           uuid.UUID
	Variant      string
	Welcome      string
	QuickReplies []string
	Replier      Replier
	Bridge       *speech.Bridge
	Utterances   UtteranceAcknowledger
	Publisher    Publisher
	Renderer     Renderer
	Log          logrus.FieldLogger
}

// Controller owns the state of one open widget and sequences the assistant
// call and the speech bridge. All state changes happen under mu.
type Controller struct {
	id           uuid.UUID
	variant      string
	quickReplies []string
	replier      Replier
	bridge       *speech.Bridge
	utterances   UtteranceAcknowledger
	publisher    Publisher
	renderer     Renderer
	log          logrus.FieldLogger
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	messages     []models.ChatMessage
	nextID       int64
	revision     int64
	pendingInput string
	awaiting     bool
	requestID    uint64
	closed       bool
	status       speech.Status
	lastActive   time.Time
}

// New seeds the conversation with the welcome message and, when quick
// replies are configured, the one-time placeholder that offers them.
func New(cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:           cfg.ID,
		variant:      cfg.Variant,
		quickReplies: cfg.QuickReplies,
		replier:      cfg.Replier,
		bridge:       cfg.Bridge,
		utterances:   cfg.Utterances,
		publisher:    cfg.Publisher,
		renderer:     cfg.Renderer,
		log:          cfg.Log.WithField("conversation_id", cfg.ID),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	if c.bridge == nil {
		c.bridge = speech.NewBridge(nil, nil, c.log)
	}
	c.lastActive = c.now()

	if cfg.Welcome != "" {
		c.appendLocked(models.RoleAssistant, cfg.Welcome)
	}
	if len(cfg.QuickReplies) > 0 {
		c.appendLocked(models.RoleSystemPrompt, "")
	}

	c.bridge.OnStatusChange(c.onSpeechStatus)
	return c
}

func (c *Controller) ID() uuid.UUID { return c.id }

// State returns a copy of the current conversation state.
func (c *Controller) State() models.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// LastActive is the time of the most recent visitor action or reply.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// SetInput stages text typed by the visitor.
func (c *Controller) SetInput(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pendingInput = text
	c.changedLocked()
	c.mu.Unlock()

	c.publish()
	return nil
}

// Submit sends text to the assistant. Nothing changes when text is blank
// (ErrBlankMessage), a reply is still pending (ErrAwaitingReply) or the
// conversation is closed (ErrClosed).
func (c *Controller) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.awaiting {
		c.mu.Unlock()
		return ErrAwaitingReply
	}
	c.appendLocked(models.RoleUser, text)
	c.pendingInput = ""
	c.awaiting = true
	c.removePlaceholderLocked()
	c.requestID++
	reqID := c.requestID
	c.changedLocked()
	c.mu.Unlock()

	c.publish()
	go c.awaitReply(reqID, text)
	return nil
}

// SubmitPending submits whatever is currently staged.
func (c *Controller) SubmitPending() error {
	c.mu.Lock()
	text := c.pendingInput
	c.mu.Unlock()
	return c.Submit(text)
}

// PickQuickReply stages a suggested question and removes the placeholder.
// It does not submit.
func (c *Controller) PickQuickReply(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pendingInput = text
	c.removePlaceholderLocked()
	c.changedLocked()
	c.mu.Unlock()

	c.publish()
	return nil
}

// StartDictation begins speech capture. The transcript is staged as the
// pending input, never submitted.
func (c *Controller) StartDictation() (bool, error) {
	if err := c.checkSpeech(); err != nil {
		return false, err
	}
	return c.bridge.StartCapture(c.stageTranscript), nil
}

func (c *Controller) StopDictation() error {
	if err := c.checkSpeech(); err != nil {
		return err
	}
	c.bridge.StopCapture()
	return nil
}

// ToggleReadAloud stops playback if anything is playing, otherwise reads
// the given assistant message aloud. It reports whether playback started.
func (c *Controller) ToggleReadAloud(messageID int64) (bool, error) {
	if err := c.checkSpeech(); err != nil {
		return false, err
	}

	if c.bridge.Status().Speaking {
		c.bridge.Cancel()
		return false, nil
	}

	c.mu.Lock()
	content, ok := c.assistantContentLocked(messageID)
	c.lastActive = c.now()
	c.mu.Unlock()
	if !ok {
		return false, ErrMessageNotFound
	}

	return c.bridge.Speak(speech.Sentences(content)), nil
}

// HandleSpeechEvent routes a speech platform event from the browser.
func (c *Controller) HandleSpeechEvent(eventType string, ev models.SpeechEvent) {
	switch eventType {
	case models.WSSpeechCaptureStarted:
		c.bridge.HandleCaptureStarted()
	case models.WSSpeechCaptureResult:
		c.bridge.HandleTranscript(ev.Transcript)
	case models.WSSpeechCaptureError:
		c.bridge.HandleCaptureError(ev.Error)
	case models.WSSpeechCaptureEnd:
		c.bridge.HandleCaptureEnd()
	case models.WSSpeechUtteranceEnd:
		if c.utterances != nil {
			c.utterances.UtteranceEnded(ev.Seq)
		}
	case models.WSSpeechUtteranceError:
		if c.utterances != nil {
			c.utterances.UtteranceFailed(ev.Seq, ev.Error)
		}
	default:
		c.log.WithField("type", eventType).Debug("Ignoring unknown speech event")
	}
}

// Close disposes the conversation. A reply still in flight is discarded
// when it arrives.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.changedLocked()
	c.mu.Unlock()

	c.cancel()
	c.bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, c.id, models.WSMessage{Type: models.WSConversationClosed, Payload: map[string]string{"id": c.id.String()}}); err != nil {
		c.log.WithError(err).Warn("Failed to publish conversation close")
	}
}

func (c *Controller) awaitReply(reqID uint64, text string) {
	reply, ok := c.fetchReply(text)
	if !ok || strings.TrimSpace(reply) == "" {
		reply = c.replier.TechnicalIssue()
	}

	c.mu.Lock()
	if c.closed || reqID != c.requestID {
		c.mu.Unlock()
		c.log.WithField("request_id", reqID).Debug("Discarding reply for stale request")
		return
	}
	c.appendLocked(models.RoleAssistant, reply)
	c.awaiting = false
	c.changedLocked()
	c.mu.Unlock()

	c.publish()
}

func (c *Controller) fetchReply(text string) (reply string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("Assistant reply failed unexpectedly")
			reply, ok = "", false
		}
	}()
	return c.replier.GetReply(c.ctx, text), true
}

func (c *Controller) stageTranscript(transcript string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pendingInput = transcript
	c.changedLocked()
	c.mu.Unlock()

	c.publish()
}

func (c *Controller) onSpeechStatus(status speech.Status) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.changedLocked()
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		c.publish()
	}
}

func (c *Controller) checkSpeech() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !c.bridge.Supported() {
		return ErrSpeechUnsupported
	}
	return nil
}

func (c *Controller) publish() {
	state := c.State()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, c.id, models.WSMessage{Type: models.WSConversationUpdated, Payload: state}); err != nil {
		c.log.WithError(err).Warn("Failed to publish conversation update")
	}
}

func (c *Controller) appendLocked(role, content string) {
	c.nextID++
	msg := models.ChatMessage{
		ID:        c.nextID,
		Role:      role,
		Content:   content,
		CreatedAt: c.now(),
	}
	if role == models.RoleAssistant && c.renderer != nil {
		msg.HTML = c.renderer.HTML(content)
	}
	c.messages = append(c.messages, msg)
}

func (c *Controller) removePlaceholderLocked() {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.Role != models.RoleSystemPrompt {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

func (c *Controller) assistantContentLocked(id int64) (string, bool) {
	for _, m := range c.messages {
		if m.ID == id && m.Role == models.RoleAssistant {
			return m.Content, true
		}
	}
	return "", false
}

func (c *Controller) changedLocked() {
	c.revision++
	c.lastActive = c.now()
}

func (c *Controller) stateLocked() models.ConversationState {
	messages := make([]models.ChatMessage, len(c.messages))
	copy(messages, c.messages)

	state := models.ConversationState{
		ID:                c.id,
		Revision:          c.revision,
		Variant:           c.variant,
		Messages:          messages,
		PendingInput:      c.pendingInput,
		IsAwaitingReply:   c.awaiting,
		IsCapturingSpeech: c.status.Listening,
		IsPlayingSpeech:   c.status.Speaking,
		SpeechSupported:   c.bridge.Supported(),
		Closed:            c.closed,
	}
	if c.hasPlaceholderLocked() {
		state.QuickReplies = append([]string(nil), c.quickReplies...)
	}
	return state
}

func (c *Controller) hasPlaceholderLocked() bool {
	for _, m := range c.messages {
		if m.Role == models.RoleSystemPrompt {
			return true
		}
	}
	return false
}
