package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/whatsapp"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

type surveyParticipantStore interface {
	UpdateCursor(ctx context.Context, id string, lastPromptSent *int, lastQuestionAsked *string) error
}

type surveyStore interface {
	FindQuestionByID(ctx context.Context, id string) (*models.Question, error)
	ListQuestionsByPrompt(ctx context.Context, surveyID string, promptNumber int) ([]models.Question, error)
	ListGroupQuestions(ctx context.Context, groupID string) ([]models.Question, error)
	FindGroupByID(ctx context.Context, id string) (*models.QuestionGroup, error)
	FindLogic(ctx context.Context, surveyID string, questionID, groupID *string, responseOptionID string) (*models.SurveyLogic, error)
}

type responseStore interface {
	Create(ctx context.Context, resp *models.Response) error
}

type mediaIngestor interface {
	Ingest(ctx context.Context, media *dto.MediaDescriptor, questionID, participantID string) (*whatsapp.StoredMedia, error)
}

type annotationForwarder interface {
	Forward(resp *models.Response)
}

// SurveyFlowService drives the main survey once onboarding is complete: it
// records the answer to the outstanding question, applies branching rules,
// and sends the next question. The cursor (last_prompt_sent plus
// last_question_asked) is persisted atomically and only after the outbound
// send it depends on has succeeded; the one exception is survey completion,
// where the cursor is persisted first so completion messages are never
// resent as questions.
type SurveyFlowService struct {
	participants surveyParticipantStore
	surveys      surveyStore
	responses    responseStore
	media        mediaIngestor
	sender       messageSender
	annotations  annotationForwarder
	logger       *zap.Logger
	pick         func(n int) int
}

// NewSurveyFlowService constructs a SurveyFlowService. annotations may be
// nil; pick selects an index in [0,n) for random groups, nil uses math/rand.
func NewSurveyFlowService(
	participants surveyParticipantStore,
	surveys surveyStore,
	responses responseStore,
	media mediaIngestor,
	sender messageSender,
	annotations annotationForwarder,
	logger *zap.Logger,
	pick func(n int) int,
) *SurveyFlowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pick == nil {
		pick = rand.Intn
	}
	return &SurveyFlowService{
		participants: participants,
		surveys:      surveys,
		responses:    responses,
		media:        media,
		sender:       sender,
		annotations:  annotations,
		logger:       logger,
		pick:         pick,
	}
}

// Handle processes one inbound message for an onboarded participant.
func (s *SurveyFlowService) Handle(ctx context.Context, p *models.Participant, survey *models.Survey, msg *dto.ParsedMessage) error {
	// First contact after onboarding: no answer is outstanding, just open
	// the survey at prompt 0.
	if p.LastPromptSent == nil {
		return s.sendNext(ctx, p, survey, msg.From, 0)
	}

	current, err := s.resolveOutstanding(ctx, p, survey)
	if err != nil {
		return err
	}

	var group *models.QuestionGroup
	if current.GroupID != nil {
		group, err = s.surveys.FindGroupByID(ctx, *current.GroupID)
		if err != nil {
			return err
		}
	}

	// Inside a select group a list reply is the participant's choice of
	// which question to answer, not an answer.
	if group != nil && group.GroupType == models.GroupSelect && msg.IsListReply() {
		return s.handleQuestionSelection(ctx, p, group, msg)
	}

	if current.QuestionType == models.QuestionAudio && !msg.HasMedia() {
		return appErrors.Clone(appErrors.ErrAudioRequired,
			fmt.Sprintf("question %s requires an audio answer", current.ID))
	}

	if err := s.recordAnswer(ctx, p, current, msg); err != nil {
		return err
	}

	newPrompt := *p.LastPromptSent + 1
	if msg.Interactive != nil {
		if target := s.resolveOverride(ctx, survey.ID, current, []string{msg.Interactive.ID}); target != nil {
			s.logger.Info("branching rule matched",
				zap.String("participant_id", p.ID),
				zap.String("question_id", current.ID),
				zap.Int("next_prompt", *target),
			)
			newPrompt = *target
		}
	}

	return s.sendNext(ctx, p, survey, msg.From, newPrompt)
}

// resolveOutstanding returns the question the participant was last asked,
// preferring last_question_asked over the prompt slot's default question.
func (s *SurveyFlowService) resolveOutstanding(ctx context.Context, p *models.Participant, survey *models.Survey) (*models.Question, error) {
	if p.LastQuestionAsked != nil {
		q, err := s.surveys.FindQuestionByID(ctx, *p.LastQuestionAsked)
		if err != nil {
			return nil, err
		}
		if q != nil {
			return q, nil
		}
	}
	questions, err := s.surveys.ListQuestionsByPrompt(ctx, survey.ID, *p.LastPromptSent)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrQuestionNotFound,
			fmt.Sprintf("no question at prompt %d of survey %s", *p.LastPromptSent, survey.Name))
	}
	return &questions[0], nil
}

func (s *SurveyFlowService) handleQuestionSelection(ctx context.Context, p *models.Participant, group *models.QuestionGroup, msg *dto.ParsedMessage) error {
	chosen, err := s.surveys.FindQuestionByID(ctx, msg.Interactive.ID)
	if err != nil {
		return err
	}
	if chosen == nil || chosen.GroupID == nil || *chosen.GroupID != group.ID {
		return protocolViolation(fmt.Sprintf("selection %q is not a question of the offered group", msg.Interactive.ID))
	}

	if err := s.sender.SendQuestion(ctx, msg.From, chosen); err != nil {
		return err
	}
	// The prompt slot stays put until the chosen question is answered.
	if err := s.participants.UpdateCursor(ctx, p.ID, p.LastPromptSent, &chosen.ID); err != nil {
		return err
	}
	p.LastQuestionAsked = &chosen.ID
	s.logger.Info("participant selected question",
		zap.String("participant_id", p.ID),
		zap.String("question_id", chosen.ID),
	)
	return nil
}

// recordAnswer ingests any attached media and appends the Response row.
func (s *SurveyFlowService) recordAnswer(ctx context.Context, p *models.Participant, question *models.Question, msg *dto.ParsedMessage) error {
	resp := &models.Response{
		ParticipantID: &p.ID,
		QuestionID:    question.ID,
		ResponseType:  msg.Kind,
	}

	switch {
	case msg.HasMedia():
		stored, err := s.media.Ingest(ctx, msg.Media, question.ID, p.ID)
		if err != nil {
			return err
		}
		resp.FilePath = &stored.Ref
		resp.ResponseValue = stored.Caption
		resp.Metadata = mediaMetadata(msg.Kind, stored)

	case msg.Kind == dto.KindText:
		resp.ResponseValue = &msg.Text

	case msg.Interactive != nil:
		resp.ResponseValue = &msg.Interactive.Title
		resp.Metadata = interactiveMetadata(msg.Interactive)

	default:
		return protocolViolation(fmt.Sprintf("unsupported answer kind %q", msg.Kind))
	}

	if err := s.responses.Create(ctx, resp); err != nil {
		return err
	}
	if s.annotations != nil && resp.ResponseType == dto.KindAudio {
		s.annotations.Forward(resp)
	}
	s.logger.Info("recorded response",
		zap.String("participant_id", p.ID),
		zap.String("question_id", question.ID),
		zap.String("response_type", resp.ResponseType),
	)
	return nil
}

// resolveOverride checks the branching table for each selected option in
// submission order and returns the first matching target prompt number.
func (s *SurveyFlowService) resolveOverride(ctx context.Context, surveyID string, question *models.Question, optionIDs []string) *int {
	for _, opt := range optionIDs {
		logic, err := s.surveys.FindLogic(ctx, surveyID, &question.ID, question.GroupID, opt)
		if err != nil {
			s.logger.Warn("branching lookup failed, using default advance", zap.Error(err))
			continue
		}
		if logic == nil || logic.NextQuestionID == nil {
			continue
		}
		next, err := s.surveys.FindQuestionByID(ctx, *logic.NextQuestionID)
		if err != nil {
			s.logger.Warn("branching target lookup failed, using default advance", zap.Error(err))
			continue
		}
		if next == nil || next.PromptNumber == nil {
			continue
		}
		return next.PromptNumber
	}
	return nil
}

// sendNext delivers the question at the given prompt slot, resolving group
// strategies, or the completion sequence when the survey is exhausted.
func (s *SurveyFlowService) sendNext(ctx context.Context, p *models.Participant, survey *models.Survey, to string, prompt int) error {
	questions, err := s.surveys.ListQuestionsByPrompt(ctx, survey.ID, prompt)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return s.complete(ctx, p, to, prompt)
	}

	next := &questions[0]
	var group *models.QuestionGroup
	if next.GroupID != nil {
		group, err = s.surveys.FindGroupByID(ctx, *next.GroupID)
		if err != nil {
			return err
		}
	}

	switch {
	case group != nil && group.GroupType == models.GroupSelect:
		return s.sendSelectionList(ctx, p, group, to, prompt)

	case group != nil && group.GroupType == models.GroupRandom:
		members, err := s.surveys.ListGroupQuestions(ctx, group.ID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return appErrors.Clone(appErrors.ErrQuestionNotFound,
				fmt.Sprintf("random group %s has no questions", group.ID))
		}
		chosen := &members[s.pick(len(members))]
		return s.deliver(ctx, p, to, chosen, prompt)

	default:
		return s.deliver(ctx, p, to, next, prompt)
	}
}

func (s *SurveyFlowService) deliver(ctx context.Context, p *models.Participant, to string, q *models.Question, prompt int) error {
	if err := s.sender.SendQuestion(ctx, to, q); err != nil {
		return err
	}
	if err := s.participants.UpdateCursor(ctx, p.ID, &prompt, &q.ID); err != nil {
		return err
	}
	p.LastPromptSent = &prompt
	p.LastQuestionAsked = &q.ID
	s.logger.Info("sent question",
		zap.String("participant_id", p.ID),
		zap.String("question_id", q.ID),
		zap.Int("prompt", prompt),
	)
	return nil
}

func (s *SurveyFlowService) sendSelectionList(ctx context.Context, p *models.Participant, group *models.QuestionGroup, to string, prompt int) error {
	members, err := s.surveys.ListGroupQuestions(ctx, group.ID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return appErrors.Clone(appErrors.ErrQuestionNotFound,
			fmt.Sprintf("select group %s has no questions", group.ID))
	}

	rows := make([]whatsapp.Row, 0, len(members))
	for _, q := range members {
		title, description := splitRowTitle(q.Prompt)
		rows = append(rows, whatsapp.Row{ID: q.ID, Title: title, Description: description})
	}
	sections := []whatsapp.Section{{Title: selectSectionTitle, Rows: rows}}

	if err := s.sender.SendList(ctx, to, selectQuestionBody, selectQuestionLabel, sections); err != nil {
		return err
	}
	// Cursor lands on the group's slot with no concrete question outstanding
	// until the participant picks one.
	if err := s.participants.UpdateCursor(ctx, p.ID, &prompt, nil); err != nil {
		return err
	}
	p.LastPromptSent = &prompt
	p.LastQuestionAsked = nil
	s.logger.Info("sent question selection list",
		zap.String("participant_id", p.ID),
		zap.Int("prompt", prompt),
	)
	return nil
}

// complete persists the cursor past the last question, then sends the
// three-part completion sequence. Each part is logged independently and a
// failed part does not roll back completion.
func (s *SurveyFlowService) complete(ctx context.Context, p *models.Participant, to string, prompt int) error {
	if err := s.participants.UpdateCursor(ctx, p.ID, &prompt, nil); err != nil {
		return err
	}
	p.LastPromptSent = &prompt
	p.LastQuestionAsked = nil
	s.logger.Info("survey completed", zap.String("participant_id", p.ID))

	parts := []string{
		surveyCompletionText,
		fmt.Sprintf("User ID: %s", p.ID),
		fmt.Sprintf("User Token: %s", p.Token),
	}
	for i, body := range parts {
		if err := s.sender.SendText(ctx, to, body); err != nil {
			s.logger.Error("failed to send completion message",
				zap.Int("part", i+1),
				zap.String("participant_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("sent completion message",
			zap.Int("part", i+1),
			zap.String("participant_id", p.ID),
		)
	}
	return nil
}

// splitRowTitle fits a question prompt into the 24-character list row title;
// the next 48 characters become the row description.
func splitRowTitle(prompt string) (title, description string) {
	r := []rune(prompt)
	if len(r) <= 24 {
		return prompt, ""
	}
	end := 72
	if len(r) < end {
		end = len(r)
	}
	return string(r[:24]), string(r[24:end])
}

func interactiveMetadata(reply *dto.InteractiveReply) json.RawMessage {
	var meta map[string]interface{}
	if reply.Type == dto.ReplyButton {
		meta = map[string]interface{}{
			"interactive_type": reply.Type,
			"button_id":        reply.ID,
			"button_title":     reply.Title,
		}
	} else {
		meta = map[string]interface{}{
			"interactive_type": reply.Type,
			"list_id":          reply.ID,
			"list_title":       reply.Title,
			"list_description": reply.Description,
		}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return raw
}

func mediaMetadata(kind string, stored *whatsapp.StoredMedia) json.RawMessage {
	meta := map[string]interface{}{}
	switch kind {
	case dto.KindAudio:
		meta["voice"] = stored.Voice
	case dto.KindSticker:
		meta["animated"] = stored.Animated
	default:
		if stored.Caption != nil {
			meta["caption"] = *stored.Caption
		}
	}
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return raw
}
