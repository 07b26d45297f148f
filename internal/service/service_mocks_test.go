package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/whatsapp"
)

// sentMessage records one outbound call for assertions.
type sentMessage struct {
	Kind     string // "text", "buttons", "list", "question"
	To       string
	Body     string
	Buttons  []whatsapp.Button
	Sections []whatsapp.Section
	Question *models.Question
}

// fakeSender records sends and can fail on demand.
type fakeSender struct {
	sent     []sentMessage
	failNext int // fail this many upcoming sends
	err      error
}

func (f *fakeSender) maybeFail() error {
	if f.failNext > 0 {
		f.failNext--
		if f.err != nil {
			return f.err
		}
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{Kind: "text", To: to, Body: body})
	return nil
}

func (f *fakeSender) SendButtons(_ context.Context, to, body string, buttons []whatsapp.Button) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{Kind: "buttons", To: to, Body: body, Buttons: buttons})
	return nil
}

func (f *fakeSender) SendList(_ context.Context, to, body, buttonLabel string, sections []whatsapp.Section) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{Kind: "list", To: to, Body: body, Sections: sections})
	return nil
}

func (f *fakeSender) SendQuestion(_ context.Context, to string, q *models.Question) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{Kind: "question", To: to, Question: q})
	return nil
}

func (f *fakeSender) last() sentMessage {
	return f.sent[len(f.sent)-1]
}

// fakeParticipantStore keeps participants in memory.
type fakeParticipantStore struct {
	participants map[string]*models.Participant
	updateCalls  int
	cursorCalls  int
	updateErr    error
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{participants: map[string]*models.Participant{}}
}

func (f *fakeParticipantStore) Update(_ context.Context, p *models.Participant) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls++
	copied := *p
	f.participants[p.ID] = &copied
	return nil
}

func (f *fakeParticipantStore) UpdateCursor(_ context.Context, id string, lastPromptSent *int, lastQuestionAsked *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.cursorCalls++
	p, ok := f.participants[id]
	if !ok {
		p = &models.Participant{ID: id}
		f.participants[id] = p
	}
	p.LastPromptSent = lastPromptSent
	p.LastQuestionAsked = lastQuestionAsked
	return nil
}

func (f *fakeParticipantStore) GetOrCreate(_ context.Context, phone, surveyName string) (*models.Participant, error) {
	for _, p := range f.participants {
		if p.PhoneNumber != nil && *p.PhoneNumber == phone {
			return p, nil
		}
	}
	p := &models.Participant{
		ID:          "p-" + phone,
		PhoneNumber: &phone,
		Token:       "tok-" + phone,
		SurveyName:  &surveyName,
	}
	f.participants[p.ID] = p
	return p, nil
}

// fakeSurveyStore serves a fixed question graph.
type fakeSurveyStore struct {
	questions map[string]*models.Question
	groups    map[string]*models.QuestionGroup
	logic     []models.SurveyLogic
}

func newFakeSurveyStore() *fakeSurveyStore {
	return &fakeSurveyStore{
		questions: map[string]*models.Question{},
		groups:    map[string]*models.QuestionGroup{},
	}
}

func (f *fakeSurveyStore) addQuestion(q models.Question) *models.Question {
	copied := q
	f.questions[q.ID] = &copied
	return &copied
}

func (f *fakeSurveyStore) FindQuestionByID(_ context.Context, id string) (*models.Question, error) {
	return f.questions[id], nil
}

func (f *fakeSurveyStore) ListQuestionsByPrompt(_ context.Context, surveyID string, promptNumber int) ([]models.Question, error) {
	var out []models.Question
	for _, q := range f.questions {
		if q.SurveyID == surveyID && q.PromptNumber != nil && *q.PromptNumber == promptNumber && q.Active {
			out = append(out, *q)
		}
	}
	sortQuestions(out)
	return out, nil
}

func (f *fakeSurveyStore) ListGroupQuestions(_ context.Context, groupID string) ([]models.Question, error) {
	var out []models.Question
	for _, q := range f.questions {
		if q.GroupID != nil && *q.GroupID == groupID && q.Active {
			out = append(out, *q)
		}
	}
	sortQuestions(out)
	return out, nil
}

// sortQuestions mirrors the repository's ORDER BY so tests are stable.
func sortQuestions(qs []models.Question) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
}

func (f *fakeSurveyStore) FindGroupByID(_ context.Context, id string) (*models.QuestionGroup, error) {
	return f.groups[id], nil
}

func (f *fakeSurveyStore) FindLogic(_ context.Context, surveyID string, questionID, groupID *string, responseOptionID string) (*models.SurveyLogic, error) {
	for i := range f.logic {
		l := &f.logic[i]
		if l.SurveyID != surveyID || l.ResponseOptionID != responseOptionID {
			continue
		}
		if questionID != nil && l.QuestionID != nil && *l.QuestionID == *questionID {
			return l, nil
		}
		if groupID != nil && l.QuestionGroupID != nil && *l.QuestionGroupID == *groupID {
			return l, nil
		}
	}
	return nil, nil
}

// fakeResponseStore appends created responses.
type fakeResponseStore struct {
	created []models.Response
}

func (f *fakeResponseStore) Create(_ context.Context, resp *models.Response) error {
	if resp.ID == "" {
		resp.ID = fmt.Sprintf("r-%d", len(f.created)+1)
	}
	f.created = append(f.created, *resp)
	return nil
}

// fakeIngestor returns a canned stored-media result.
type fakeIngestor struct {
	stored *whatsapp.StoredMedia
	err    error
	calls  int
}

func (f *fakeIngestor) Ingest(_ context.Context, media *dto.MediaDescriptor, questionID, participantID string) (*whatsapp.StoredMedia, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.stored != nil {
		return f.stored, nil
	}
	return &whatsapp.StoredMedia{
		Ref:      fmt.Sprintf("%s/%s_file.ogg", questionID, participantID),
		MimeType: media.MimeType,
		Caption:  media.Caption,
		Voice:    media.Voice,
		Animated: media.Animated,
	}, nil
}

// fakeDeduper claims every key once.
type fakeDeduper struct {
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (f *fakeDeduper) ClaimOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDeduper) Release(_ context.Context, key string) error {
	delete(f.seen, key)
	return nil
}

// noopLocker satisfies the per-participant lock contract for tests.
type noopLocker struct{}

func (noopLocker) Lock(string)   {}
func (noopLocker) Unlock(string) {}

// Message constructors shared by the flow tests.

func textMessage(from, body string) *dto.ParsedMessage {
	return &dto.ParsedMessage{MessageID: "m-" + body, From: from, Kind: dto.KindText, Text: body}
}

func buttonReply(from, id, title string) *dto.ParsedMessage {
	return &dto.ParsedMessage{
		MessageID:   "m-" + id,
		From:        from,
		Kind:        dto.KindInteractive,
		Interactive: &dto.InteractiveReply{Type: dto.ReplyButton, ID: id, Title: title},
	}
}

func listReply(from, id, title string) *dto.ParsedMessage {
	return &dto.ParsedMessage{
		MessageID:   "m-" + id,
		From:        from,
		Kind:        dto.KindInteractive,
		Interactive: &dto.InteractiveReply{Type: dto.ReplyList, ID: id, Title: title},
	}
}

func audioMessage(from, remoteID string) *dto.ParsedMessage {
	voice := true
	return &dto.ParsedMessage{
		MessageID: "m-" + remoteID,
		From:      from,
		Kind:      dto.KindAudio,
		Media: &dto.MediaDescriptor{
			RemoteID:    remoteID,
			MimeType:    "audio/ogg; codecs=opus",
			ChannelType: dto.KindAudio,
			Voice:       &voice,
		},
	}
}
