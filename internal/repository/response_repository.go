package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ramsalab/survey-api/internal/models"
)

// ResponseRepository appends answer records. Responses are write-once; the
// only read path is the export join.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs a ResponseRepository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Create inserts one response row. The ID is generated here when blank.
func (r *ResponseRepository) Create(ctx context.Context, resp *models.Response) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	query := `INSERT INTO responses (id, participant_id, question_id, response_type, response_value, file_path, metadata, timestamp)
        VALUES (:id, :participant_id, :question_id, :response_type, :response_value, :file_path, :metadata, NOW())`
	if _, err := r.db.NamedExecContext(ctx, query, resp); err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

// ListForExport returns every response of one survey joined with the
// question, survey and participant demographics, ordered by answer time.
func (r *ResponseRepository) ListForExport(ctx context.Context, surveyName string) ([]models.ExportRow, error) {
	var rows []models.ExportRow
	query := `SELECT r.id AS response_id, r.participant_id, r.question_id, q.prompt AS question_prompt,
        s.id AS survey_id, s.name AS survey_name, r.response_type, r.response_value, r.file_path, r.timestamp,
        p.emirati_citizenship, p.age_group, p.place_of_birth, p.current_residence,
        p.consent_read_form, p.consent_required, p.consent_optional, p.consent_optional_alternative
        FROM responses r
        JOIN questions q ON q.id = r.question_id
        JOIN surveys s ON s.id = q.survey_id
        LEFT JOIN participants p ON p.id = r.participant_id
        WHERE s.name = $1
        ORDER BY r.timestamp, r.id`
	if err := r.db.SelectContext(ctx, &rows, query, surveyName); err != nil {
		return nil, fmt.Errorf("list responses for export: %w", err)
	}
	return rows, nil
}
