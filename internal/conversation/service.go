package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"boldestate-backend/internal/models"
	"boldestate-backend/internal/services"
	"boldestate-backend/internal/speech"
)

var ErrNotFound = errors.New("conversation not found")

// ReplierFactory binds an assistant client to one conversation.
type ReplierFactory func(conversationID uuid.UUID, profile *services.Profile) Replier

type ServiceOptions struct {
	Replies          ReplierFactory
	Registry         *Registry
	Publisher        Publisher
	Renderer         Renderer
	DefaultVariant   string
	UtteranceTimeout time.Duration
	Log              logrus.FieldLogger
}

// Service creates conversations and routes widget traffic to them.
type Service struct {
	replies          ReplierFactory
	registry         *Registry
	publisher        Publisher
	renderer         Renderer
	defaultVariant   string
	utteranceTimeout time.Duration
	log              logrus.FieldLogger
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		replies:          opts.Replies,
		registry:         opts.Registry,
		publisher:        opts.Publisher,
		renderer:         opts.Renderer,
		defaultVariant:   opts.DefaultVariant,
		utteranceTimeout: opts.UtteranceTimeout,
		log:              opts.Log,
	}
}

// Create opens a conversation for a freshly mounted widget. Speech is only
// wired for the voice variant and only for the capabilities the browser
// reported.
func (s *Service) Create(variant string, caps models.SpeechCapabilities) (*Controller, error) {
	if variant == "" {
		variant = s.defaultVariant
	}
	if !services.ValidVariant(variant) {
		return nil, &services.ValidationError{Fields: map[string]string{
			"variant": fmt.Sprintf("must be %q or %q", models.VariantClassic, models.VariantVoice),
		}}
	}

	id := uuid.New()
	profile := services.ProfileFor(variant)
	log := s.log.WithField("conversation_id", id)

	sender := speech.SenderFunc(func(ctx context.Context, msg models.WSMessage) error {
		return s.publisher.Publish(ctx, id, msg)
	})

	var (
		recognizer speech.Recognizer
		synth      speech.Synthesizer
		acks       UtteranceAcknowledger
	)
	if variant == models.VariantVoice {
		if caps.Recognition {
			recognizer = speech.NewRemoteRecognizer(sender)
		}
		if caps.Synthesis {
			remote := speech.NewRemoteSynthesizer(sender, s.utteranceTimeout, log)
			synth = remote
			acks = remote
		}
	}

	c := New(Config{
		ID:           id,
		Variant:      variant,
		Welcome:      profile.Welcome,
		QuickReplies: profile.QuickReplies,
		Replier:      s.replies(id, profile),
		Bridge:       speech.NewBridge(recognizer, synth, log),
		Utterances:   acks,
		Publisher:    s.publisher,
		Renderer:     s.renderer,
		Log:          s.log,
	})
	s.registry.Add(c)

	log.WithFields(logrus.Fields{
		"variant":          variant,
		"speech_supported": c.State().SpeechSupported,
	}).Info("Conversation opened")
	return c, nil
}

func (s *Service) Get(id uuid.UUID) (*Controller, error) {
	c, ok := s.registry.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) Close(id uuid.UUID) error {
	if !s.registry.Remove(id) {
		return ErrNotFound
	}
	s.log.WithField("conversation_id", id).Info("Conversation closed")
	return nil
}

type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandleClientMessage decodes a frame sent by the widget over the
// WebSocket and forwards speech platform events to the conversation.
func (s *Service) HandleClientMessage(conversationID uuid.UUID, data []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode client message: %w", err)
	}

	var ev models.SpeechEvent
	if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
		}
	}

	c, err := s.Get(conversationID)
	if err != nil {
		return err
	}
	c.HandleSpeechEvent(msg.Type, ev)
	return nil
}
