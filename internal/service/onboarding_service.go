package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/whatsapp"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

// messageSender is the outbound channel contract shared by the onboarding
// and survey state machines. Every send reports success or failure; state is
// persisted only after the send that depends on it succeeds.
type messageSender interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) error
	SendList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.Section) error
	SendQuestion(ctx context.Context, to string, q *models.Question) error
}

type onboardingParticipantStore interface {
	Update(ctx context.Context, p *models.Participant) error
}

var letterPattern = regexp.MustCompile(`[A-Za-z]`)

// OnboardingService walks a participant through the consent and demographic
// questionnaire. The current step is computed from the participant's
// field-nullness vector on every event, so the machine is stateless between
// events.
type OnboardingService struct {
	participants onboardingParticipantStore
	sender       messageSender
	logger       *zap.Logger
}

// NewOnboardingService constructs an OnboardingService.
func NewOnboardingService(participants onboardingParticipantStore, sender messageSender, logger *zap.Logger) *OnboardingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingService{participants: participants, sender: sender, logger: logger}
}

// Handle processes one inbound message for a participant who has not yet
// completed onboarding. Protocol violations leave the participant untouched.
func (s *OnboardingService) Handle(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	step, ok := p.CurrentOnboardingStep()
	if !ok {
		return appErrors.Clone(appErrors.ErrUnknownParticipantState,
			fmt.Sprintf("participant %s field combination matches no onboarding step", p.ID))
	}

	s.logger.Debug("onboarding event",
		zap.String("participant_id", p.ID),
		zap.String("step", step.String()),
		zap.String("kind", msg.Kind),
	)

	switch step {
	case models.StepConsentForm:
		return s.handleConsentForm(ctx, p, msg)
	case models.StepCitizenship:
		return s.handleCitizenship(ctx, p, msg)
	case models.StepAgeGroup:
		return s.handleAgeGroup(ctx, p, msg)
	case models.StepPlaceOfBirth:
		return s.handlePlaceOfBirth(ctx, p, msg)
	case models.StepResidence:
		return s.handleResidence(ctx, p, msg)
	case models.StepOptionalInfo:
		return s.handleOptionalInfo(ctx, p, msg)
	case models.StepConsentRequired:
		return s.handleConsentRequired(ctx, p, msg)
	case models.StepConsentOptional:
		return s.handleConsentOptional(ctx, p, msg)
	case models.StepConsentOptionalAlt:
		return s.handleConsentOptionalAlt(ctx, p, msg)
	default:
		return appErrors.Clone(appErrors.ErrUnknownParticipantState,
			fmt.Sprintf("onboarding dispatched for completed participant %s", p.ID))
	}
}

// answerAndAdvance applies the field mutation, sends the next prompt, and
// persists the participant only once the send succeeded. This is the single
// ordering helper every transition goes through.
func (s *OnboardingService) answerAndAdvance(ctx context.Context, p *models.Participant, mutate func(*models.Participant), send func(context.Context) error) error {
	mutate(p)
	if err := send(ctx); err != nil {
		return err
	}
	return s.participants.Update(ctx, p)
}

func (s *OnboardingService) sendButtonPrompt(ctx context.Context, to string, prompt buttonPrompt) error {
	return s.sender.SendButtons(ctx, to, prompt.Body, prompt.Buttons)
}

func (s *OnboardingService) sendListPrompt(ctx context.Context, to string, prompt listPrompt) error {
	return s.sender.SendList(ctx, to, prompt.Body, prompt.ButtonLabel, []whatsapp.Section{prompt.Section})
}

func (s *OnboardingService) handleConsentForm(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	// First contact: anything that is not an interactive reply restarts the
	// consent prompt without touching state.
	if msg.Kind != dto.KindInteractive {
		if err := s.sendButtonPrompt(ctx, msg.From, consentFormPrompt); err != nil {
			return err
		}
		s.logger.Info("sent consent prompt", zap.String("to", msg.From))
		return nil
	}
	if !msg.IsButtonReply() {
		return protocolViolation("a button reply is the only interactive message expected before consent")
	}

	switch msg.Interactive.ID {
	case ButtonConsentYes:
		return s.answerAndAdvance(ctx, p,
			func(p *models.Participant) { p.ConsentReadForm = boolPtr(true) },
			func(ctx context.Context) error { return s.sendButtonPrompt(ctx, msg.From, citizenshipPrompt) },
		)
	case ButtonConsentNo:
		if err := s.sender.SendText(ctx, msg.From, consentDeclineText); err != nil {
			return err
		}
		s.logger.Info("participant declined terms", zap.String("participant_id", p.ID))
		return nil
	default:
		return protocolViolation(fmt.Sprintf("unexpected consent button %q", msg.Interactive.ID))
	}
}

func (s *OnboardingService) handleCitizenship(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if !msg.IsButtonReply() {
		return protocolViolation("citizenship expects a button reply")
	}
	id := msg.Interactive.ID
	if id != ButtonCitizenshipYes && id != ButtonCitizenshipNo {
		return protocolViolation(fmt.Sprintf("unexpected citizenship button %q", id))
	}
	return s.answerAndAdvance(ctx, p,
		func(p *models.Participant) { p.Citizenship = boolPtr(id == ButtonCitizenshipYes) },
		func(ctx context.Context) error { return s.sendListPrompt(ctx, msg.From, ageGroupPrompt) },
	)
}

func (s *OnboardingService) handleAgeGroup(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if !msg.IsListReply() {
		return protocolViolation("age group expects a list reply")
	}
	id := msg.Interactive.ID
	if !strings.HasPrefix(id, AgeOptionPrefix) {
		return protocolViolation(fmt.Sprintf("unexpected age option %q", id))
	}
	age, err := strconv.Atoi(strings.TrimPrefix(id, AgeOptionPrefix))
	if err != nil {
		return protocolViolation(fmt.Sprintf("malformed age option %q", id))
	}
	return s.answerAndAdvance(ctx, p,
		func(p *models.Participant) { p.AgeGroup = &age },
		func(ctx context.Context) error { return s.sendListPrompt(ctx, msg.From, placeOfBirthPrompt) },
	)
}

func (s *OnboardingService) handlePlaceOfBirth(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	// The "other" list choice opens a free-text follow-up, so plain text is
	// also a valid shape at this step.
	switch {
	case msg.IsListReply():
		id := msg.Interactive.ID
		if !strings.HasPrefix(id, PlaceOptionPrefix) {
			return protocolViolation(fmt.Sprintf("unexpected birthplace option %q", id))
		}
		value := strings.TrimPrefix(id, PlaceOptionPrefix)
		if value == OtherOptionValue {
			return s.sender.SendText(ctx, msg.From, placeOfBirthOtherText)
		}
		return s.answerAndAdvance(ctx, p,
			func(p *models.Participant) { p.PlaceOfBirth = &value },
			func(ctx context.Context) error { return s.sendListPrompt(ctx, msg.From, residencePrompt) },
		)
	case msg.Kind == dto.KindText:
		value := msg.Text
		return s.answerAndAdvance(ctx, p,
			func(p *models.Participant) { p.PlaceOfBirth = &value },
			func(ctx context.Context) error { return s.sendListPrompt(ctx, msg.From, residencePrompt) },
		)
	default:
		return protocolViolation("place of birth expects a list reply or text")
	}
}

func (s *OnboardingService) handleResidence(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	switch {
	case msg.IsListReply():
		id := msg.Interactive.ID
		if !strings.HasPrefix(id, ResidenceOptionPrefix) {
			return protocolViolation(fmt.Sprintf("unexpected residence option %q", id))
		}
		value := strings.TrimPrefix(id, ResidenceOptionPrefix)
		if value == OtherOptionValue {
			return s.sender.SendText(ctx, msg.From, residenceOtherText)
		}
		return s.answerAndAdvance(ctx, p,
			func(p *models.Participant) { p.CurrentResidence = &value },
			func(ctx context.Context) error { return s.sender.SendText(ctx, msg.From, optionalInfoText) },
		)
	case msg.Kind == dto.KindText:
		value := msg.Text
		return s.answerAndAdvance(ctx, p,
			func(p *models.Participant) { p.CurrentResidence = &value },
			func(ctx context.Context) error { return s.sender.SendText(ctx, msg.From, optionalInfoText) },
		)
	default:
		return protocolViolation("residence expects a list reply or text")
	}
}

func (s *OnboardingService) handleOptionalInfo(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if msg.Kind != dto.KindText {
		return protocolViolation("optional info expects text")
	}
	name, phone := parseOptionalInfo(msg.Text)
	return s.answerAndAdvance(ctx, p,
		func(p *models.Participant) {
			p.OptionalName = name
			p.OptionalPhone = phone
		},
		func(ctx context.Context) error { return s.sendButtonPrompt(ctx, msg.From, consentRequiredPrompt) },
	)
}

func (s *OnboardingService) handleConsentRequired(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if !msg.IsButtonReply() {
		return protocolViolation("required consent expects a button reply")
	}
	id := msg.Interactive.ID
	if id != ButtonConsentRequiredYes && id != ButtonConsentRequiredNo {
		return protocolViolation(fmt.Sprintf("unexpected required-consent button %q", id))
	}
	return s.answerAndAdvance(ctx, p,
		func(p *models.Participant) { p.ConsentRequired = boolPtr(id == ButtonConsentRequiredYes) },
		func(ctx context.Context) error { return s.sendButtonPrompt(ctx, msg.From, consentOptionalPrompt) },
	)
}

func (s *OnboardingService) handleConsentOptional(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if !msg.IsButtonReply() {
		return protocolViolation("optional consent expects a button reply")
	}
	switch msg.Interactive.ID {
	case ButtonConsentOptionalYes:
		// A yes completes onboarding immediately; the alternative consent
		// question is skipped.
		err := s.answerAndAdvance(ctx, p,
			func(p *models.Participant) {
				p.ConsentOptional = boolPtr(true)
				p.OnboardingCompleted = true
			},
			func(ctx context.Context) error { return s.sender.SendText(ctx, msg.From, onboardingCompleteText) },
		)
		if err == nil {
			s.logger.Info("participant finished onboarding", zap.String("participant_id", p.ID))
		}
		return err
	case ButtonConsentOptionalNo:
		return s.answerAndAdvance(ctx, p,
			func(p *models.Participant) { p.ConsentOptional = boolPtr(false) },
			func(ctx context.Context) error { return s.sendButtonPrompt(ctx, msg.From, consentOptionalAltPrompt) },
		)
	default:
		return protocolViolation(fmt.Sprintf("unexpected optional-consent button %q", msg.Interactive.ID))
	}
}

func (s *OnboardingService) handleConsentOptionalAlt(ctx context.Context, p *models.Participant, msg *dto.ParsedMessage) error {
	if !msg.IsButtonReply() {
		return protocolViolation("alternative consent expects a button reply")
	}
	id := msg.Interactive.ID
	if id != ButtonConsentOptionalAltYes && id != ButtonConsentOptionalAltNo {
		return protocolViolation(fmt.Sprintf("unexpected alternative-consent button %q", id))
	}
	err := s.answerAndAdvance(ctx, p,
		func(p *models.Participant) {
			p.ConsentOptionalAlt = boolPtr(id == ButtonConsentOptionalAltYes)
			p.OnboardingCompleted = true
		},
		func(ctx context.Context) error { return s.sender.SendText(ctx, msg.From, onboardingCompleteText) },
	)
	if err == nil {
		s.logger.Info("participant finished onboarding", zap.String("participant_id", p.ID))
	}
	return err
}

// parseOptionalInfo splits the optional name/contact reply. The first line is
// the name and the second the phone number; lines past the second are
// discarded. A single line is a name when it contains a letter, otherwise a
// phone number. The reply is stored verbatim, including an explicit "No", so
// the step always counts as answered.
func parseOptionalInfo(text string) (name, phone *string) {
	lines := strings.Split(text, "\n")
	if len(lines) >= 2 {
		return &lines[0], &lines[1]
	}
	if letterPattern.MatchString(text) {
		return &text, nil
	}
	return nil, &text
}

func protocolViolation(detail string) error {
	return appErrors.Clone(appErrors.ErrProtocolViolation, detail)
}

func boolPtr(v bool) *bool { return &v }
