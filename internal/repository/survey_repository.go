package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ramsalab/survey-api/internal/models"
)

const questionColumns = `id, survey_id, question_group_id, prompt, question_type, prompt_number, options, required, active, created_at`

// SurveyRepository reads surveys, their questions, groups and branching rules.
// Surveys are authored out of band, so this repository is read-only.
type SurveyRepository struct {
	db *sqlx.DB
}

// NewSurveyRepository constructs a SurveyRepository.
func NewSurveyRepository(db *sqlx.DB) *SurveyRepository {
	return &SurveyRepository{db: db}
}

// FindByName returns the survey with the given name, or nil when absent.
func (r *SurveyRepository) FindByName(ctx context.Context, name string) (*models.Survey, error) {
	var s models.Survey
	query := "SELECT id, name, description, created_at FROM surveys WHERE name = $1"
	if err := r.db.GetContext(ctx, &s, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find survey by name: %w", err)
	}
	return &s, nil
}

// FindQuestionByID returns one question, or nil when absent.
func (r *SurveyRepository) FindQuestionByID(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	query := fmt.Sprintf("SELECT %s FROM questions WHERE id = $1", questionColumns)
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find question by id: %w", err)
	}
	return &q, nil
}

// ListQuestionsByPrompt returns the active questions at one position of the
// survey spine. More than one row means the position is owned by a group.
func (r *SurveyRepository) ListQuestionsByPrompt(ctx context.Context, surveyID string, promptNumber int) ([]models.Question, error) {
	var questions []models.Question
	query := fmt.Sprintf(`SELECT %s FROM questions
        WHERE survey_id = $1 AND prompt_number = $2 AND active = TRUE
        ORDER BY created_at, id`, questionColumns)
	if err := r.db.SelectContext(ctx, &questions, query, surveyID, promptNumber); err != nil {
		return nil, fmt.Errorf("list questions by prompt: %w", err)
	}
	return questions, nil
}

// ListGroupQuestions returns the active questions of one group in stable order.
func (r *SurveyRepository) ListGroupQuestions(ctx context.Context, groupID string) ([]models.Question, error) {
	var questions []models.Question
	query := fmt.Sprintf(`SELECT %s FROM questions
        WHERE question_group_id = $1 AND active = TRUE
        ORDER BY created_at, id`, questionColumns)
	if err := r.db.SelectContext(ctx, &questions, query, groupID); err != nil {
		return nil, fmt.Errorf("list group questions: %w", err)
	}
	return questions, nil
}

// FindGroupByID returns one question group, or nil when absent.
func (r *SurveyRepository) FindGroupByID(ctx context.Context, id string) (*models.QuestionGroup, error) {
	var g models.QuestionGroup
	query := `SELECT id, survey_id, name, description, group_type, prompt_number, created_at
        FROM question_groups WHERE id = $1`
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find question group: %w", err)
	}
	return &g, nil
}

// FindLogic looks up a branching rule for the answered question (or its
// group) and the selected response option. Returns nil when no rule matches.
func (r *SurveyRepository) FindLogic(ctx context.Context, surveyID string, questionID, groupID *string, responseOptionID string) (*models.SurveyLogic, error) {
	var l models.SurveyLogic
	query := `SELECT id, survey_id, question_id, question_group_id, response_option_id, next_question_id
        FROM survey_logic
        WHERE survey_id = $1
          AND response_option_id = $2
          AND (($3::text IS NOT NULL AND question_id = $3) OR ($4::text IS NOT NULL AND question_group_id = $4))
        ORDER BY id
        LIMIT 1`
	if err := r.db.GetContext(ctx, &l, query, surveyID, responseOptionID, questionID, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find survey logic: %w", err)
	}
	return &l, nil
}
