package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ramsalab/survey-api/internal/models"
)

const uniqueViolation = "23505"

const participantColumns = `id, phone_number, token, survey_name, last_prompt_sent, last_question_asked,
        emirati_citizenship, age_group, place_of_birth, current_residence,
        real_name_optional_input, phone_number_optional_input,
        consent_read_form, consent_required, consent_optional, consent_optional_alternative,
        demographics_and_consent_completed, created_at, updated_at`

// ParticipantRepository manages persistence for participants.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs a ParticipantRepository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// GetByPhone returns the participant registered under the given phone number.
func (r *ParticipantRepository) GetByPhone(ctx context.Context, phone string) (*models.Participant, error) {
	query := fmt.Sprintf("SELECT %s FROM participants WHERE phone_number = $1", participantColumns)
	var p models.Participant
	if err := r.db.GetContext(ctx, &p, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant by phone: %w", err)
	}
	return &p, nil
}

// GetByID returns one participant by primary key.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	query := fmt.Sprintf("SELECT %s FROM participants WHERE id = $1", participantColumns)
	var p models.Participant
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant by id: %w", err)
	}
	return &p, nil
}

// GetOrCreate returns the participant for the phone number, creating them on
// first contact. A concurrent insert losing the unique-constraint race falls
// back to re-reading the winner's row.
func (r *ParticipantRepository) GetOrCreate(ctx context.Context, phone, surveyName string) (*models.Participant, error) {
	if existing, err := r.GetByPhone(ctx, phone); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	p := &models.Participant{
		ID:          uuid.NewString(),
		PhoneNumber: &phone,
		Token:       uuid.NewString(),
		SurveyName:  &surveyName,
	}
	query := `INSERT INTO participants (id, phone_number, token, survey_name, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())`
	if _, err := r.db.ExecContext(ctx, query, p.ID, phone, p.Token, surveyName); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return r.GetByPhone(ctx, phone)
		}
		return nil, fmt.Errorf("create participant: %w", err)
	}
	return r.GetByPhone(ctx, phone)
}

// Update persists the participant's onboarding answers and completion flag.
// The conversation cursor is updated separately by UpdateCursor.
func (r *ParticipantRepository) Update(ctx context.Context, p *models.Participant) error {
	query := `UPDATE participants SET
        survey_name = :survey_name,
        emirati_citizenship = :emirati_citizenship,
        age_group = :age_group,
        place_of_birth = :place_of_birth,
        current_residence = :current_residence,
        real_name_optional_input = :real_name_optional_input,
        phone_number_optional_input = :phone_number_optional_input,
        consent_read_form = :consent_read_form,
        consent_required = :consent_required,
        consent_optional = :consent_optional,
        consent_optional_alternative = :consent_optional_alternative,
        demographics_and_consent_completed = :demographics_and_consent_completed,
        updated_at = NOW()
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update participant rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateCursor advances the conversation cursor in one statement so the
// prompt index and the concrete question never diverge.
func (r *ParticipantRepository) UpdateCursor(ctx context.Context, id string, lastPromptSent *int, lastQuestionAsked *string) error {
	query := `UPDATE participants SET last_prompt_sent = $2, last_question_asked = $3, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, lastPromptSent, lastQuestionAsked)
	if err != nil {
		return fmt.Errorf("update participant cursor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update participant cursor rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
