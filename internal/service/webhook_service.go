package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/whatsapp"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

type participantDirectory interface {
	GetOrCreate(ctx context.Context, phone, surveyName string) (*models.Participant, error)
}

type surveyDirectory interface {
	FindByName(ctx context.Context, name string) (*models.Survey, error)
}

type eventDeduper interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type participantLocker interface {
	Lock(key string)
	Unlock(key string)
}

type onboardingFlow interface {
	Handle(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error
}

type surveyFlow interface {
	Handle(ctx context.Context, p *models.Participant, survey *models.Survey, msg *dto.ParsedMessage) error
}

type webhookMetrics interface {
	WebhookEvent(outcome string)
	Transition(flow string)
}

// WebhookConfig carries the dispatcher's channel settings.
type WebhookConfig struct {
	VerifyToken   string
	DefaultSurvey string
	DedupeTTL     time.Duration
}

// WebhookService is the single entry point for the messaging channel: it
// answers verification handshakes, drops status receipts and duplicate
// deliveries, and routes each content message to the onboarding or survey
// state machine under a per-participant lock.
type WebhookService struct {
	participants participantDirectory
	surveys      surveyDirectory
	dedupe       eventDeduper
	locks        participantLocker
	onboarding   onboardingFlow
	survey       surveyFlow
	metrics      webhookMetrics
	cfg          WebhookConfig
	logger       *zap.Logger
}

// NewWebhookService constructs a WebhookService.
func NewWebhookService(
	participants participantDirectory,
	surveys surveyDirectory,
	dedupe eventDeduper,
	locks participantLocker,
	onboarding onboardingFlow,
	survey surveyFlow,
	metrics webhookMetrics,
	cfg WebhookConfig,
	logger *zap.Logger,
) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	return &WebhookService{
		participants: participants,
		surveys:      surveys,
		dedupe:       dedupe,
		locks:        locks,
		onboarding:   onboarding,
		survey:       survey,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
	}
}

// Verify answers the channel's subscription handshake, returning the
// challenge to echo back.
func (s *WebhookService) Verify(mode, token, challenge string) (string, error) {
	if mode == "subscribe" && token != "" && token == s.cfg.VerifyToken {
		return challenge, nil
	}
	return "", appErrors.ErrVerificationFailed
}

// HandleEvent processes one webhook delivery. Status receipts are
// acknowledged without side effects; content messages are dispatched one at
// a time.
func (s *WebhookService) HandleEvent(ctx context.Context, payload *dto.WebhookPayload) error {
	var firstErr error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Statuses) > 0 {
				s.logger.Debug("ignored status notification", zap.String("entry_id", entry.ID))
				s.count("status_ignored")
				continue
			}
			for _, raw := range change.Value.Messages {
				if err := s.handleMessage(ctx, raw); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func (s *WebhookService) handleMessage(ctx context.Context, raw dto.InboundMessage) error {
	msg, err := whatsapp.ParseInbound(raw)
	if err != nil {
		s.logger.Warn("dropping unparseable message", zap.String("message_id", raw.ID), zap.Error(err))
		s.count("unparseable")
		return nil
	}

	// The channel retries deliveries; claim the provider message id so a
	// retry of an already-handled message is a no-op.
	var claimKey string
	if msg.MessageID != "" {
		claimKey = "whatsapp:msg:" + msg.MessageID
		claimed, err := s.dedupe.ClaimOnce(ctx, claimKey, s.cfg.DedupeTTL)
		if err != nil {
			return err
		}
		if !claimed {
			s.logger.Info("duplicate delivery ignored", zap.String("message_id", msg.MessageID))
			s.count("duplicate")
			return nil
		}
	}

	// Serialize transitions per participant: two concurrent events for the
	// same sender must not both read the same pre-transition state.
	s.locks.Lock(msg.From)
	defer s.locks.Unlock(msg.From)

	p, err := s.participants.GetOrCreate(ctx, msg.From, s.cfg.DefaultSurvey)
	if err != nil {
		s.count("error")
		s.releaseClaim(ctx, claimKey)
		return err
	}

	if err := s.dispatch(ctx, p, msg); err != nil {
		s.count("error")
		s.logger.Error("event handling failed",
			zap.String("participant_id", p.ID),
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		// Handling did not complete, so the event was not applied. Surface
		// the failure to the channel and free the message id so the retry
		// is reprocessed instead of being dropped as a duplicate.
		s.releaseClaim(ctx, claimKey)
		return err
	}
	s.count("handled")
	return nil
}

// releaseClaim frees a dedupe claim after a failed handling attempt. A failed
// release only delays the retry until the claim TTL expires, so it is logged
// rather than propagated.
func (s *WebhookService) releaseClaim(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.dedupe.Release(ctx, key); err != nil {
		s.logger.Warn("dedupe release failed, retry delayed until claim expiry",
			zap.String("key", key), zap.Error(err))
	}
}

func (s *WebhookService) dispatch(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if !p.OnboardingCompleted {
		if err := s.onboarding.Handle(ctx, p, msg); err != nil {
			return err
		}
		s.transition("onboarding")
		return nil
	}

	surveyName := s.cfg.DefaultSurvey
	if p.SurveyName != nil && *p.SurveyName != "" {
		surveyName = *p.SurveyName
	}
	survey, err := s.surveys.FindByName(ctx, surveyName)
	if err != nil {
		return err
	}
	if survey == nil {
		return appErrors.Clone(appErrors.ErrSurveyNotFound, fmt.Sprintf("survey %q is not provisioned", surveyName))
	}
	if err := s.survey.Handle(ctx, p, survey, msg); err != nil {
		return err
	}
	s.transition("survey")
	return nil
}

func (s *WebhookService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvent(outcome)
	}
}

func (s *WebhookService) transition(flow string) {
	if s.metrics != nil {
		s.metrics.Transition(flow)
	}
}
