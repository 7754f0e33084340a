package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"boldestate-backend/internal/models"
)

const recordTimeout = 5 * time.Second

// ExchangeRecorder receives every finished exchange for diagnostics.
type ExchangeRecorder interface {
	Record(ctx context.Context, e *models.Exchange) error
}

type AssistantOptions struct {
	Timeout           time.Duration
	ConcurrentReqs    int
	RequestsPerMinute int
}

// AssistantService turns visitor text into a reply string. It never fails:
// every problem is absorbed into the profile's canned replies.
type AssistantService struct {
	generator Generator
	timeout   time.Duration
	rateChan  chan struct{} // Token bucket
	limiter   *rate.Limiter
	recorder  ExchangeRecorder
	log       logrus.FieldLogger
}

// NewAssistantService builds the service. A nil generator means no API key
// is configured; a nil recorder disables the exchange log.
func NewAssistantService(generator Generator, opts AssistantOptions, recorder ExchangeRecorder, log logrus.FieldLogger) *AssistantService {
	concurrent := opts.ConcurrentReqs
	if concurrent <= 0 {
		concurrent = 1
	}
	rateChan := make(chan struct{}, concurrent)
	for i := 0; i < concurrent; i++ {
		rateChan <- struct{}{}
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &AssistantService{
		generator: generator,
		timeout:   opts.Timeout,
		rateChan:  rateChan,
		limiter:   rate.NewLimiter(limit, concurrent),
		recorder:  recorder,
		log:       log,
	}
}

func (s *AssistantService) Close() error {
	if s.generator == nil {
		return nil
	}
	return s.generator.Close()
}

// Configured reports whether an API key is available.
func (s *AssistantService) Configured() bool {
	return s.generator != nil
}

// ClientFor binds the service to one conversation and widget variant.
func (s *AssistantService) ClientFor(conversationID uuid.UUID, profile *Profile) *AssistantClient {
	return &AssistantClient{service: s, conversationID: conversationID, profile: profile}
}

// acquireRate blocks until a rate slot is available
func (s *AssistantService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
	case <-ctx.Done():
		return fmt.Errorf("waiting for Gemini slot: %w", ctx.Err())
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.releaseRate()
		return fmt.Errorf("waiting for Gemini rate limit: %w", err)
	}
	return nil
}

func (s *AssistantService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *AssistantService) generate(ctx context.Context, model, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	return s.generator.Generate(ctx, model, prompt)
}

func (s *AssistantService) record(e *models.Exchange) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.recorder.Record(ctx, e); err != nil {
		s.log.WithError(err).WithField("conversation_id", e.ConversationID).Warn("Failed to record assistant exchange")
	}
}

// AssistantClient answers for a single conversation.
type AssistantClient struct {
	service        *AssistantService
	conversationID uuid.UUID
	profile        *Profile
}

// GetReply returns Gemini's answer to userText, or a canned reply when the
// key is missing or the call fails. It never returns an empty string.
func (c *AssistantClient) GetReply(ctx context.Context, userText string) string {
	s := c.service
	start := time.Now()
	exchange := &models.Exchange{
		ConversationID: c.conversationID,
		Variant:        c.profile.Variant,
		UserText:       userText,
	}
	entry := s.log.WithFields(logrus.Fields{
		"conversation_id": c.conversationID,
		"variant":         c.profile.Variant,
	})

	if !s.Configured() {
		entry.Info("Gemini API key not configured, returning setup reply")
		exchange.Reply = c.profile.NotConfigured
		exchange.Outcome = models.OutcomeNotConfigured
		s.record(exchange)
		return exchange.Reply
	}

	text, err := s.generate(ctx, c.profile.Model, c.profile.Prompt(userText))
	exchange.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		entry.WithError(err).Error("Gemini API error")
		msg := err.Error()
		exchange.ErrorMessage = &msg
		exchange.Reply = c.profile.Fallback
		exchange.Outcome = models.OutcomeFallback
		s.record(exchange)
		return exchange.Reply
	}

	entry.WithField("latency_ms", exchange.LatencyMS).Debug("Gemini reply received")
	exchange.Reply = text
	exchange.Outcome = models.OutcomeOK
	s.record(exchange)
	return text
}

// TechnicalIssue is the reply used when the pipeline itself breaks.
func (c *AssistantClient) TechnicalIssue() string {
	return c.profile.TechnicalIssue
}
