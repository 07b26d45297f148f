package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsalab/survey-api/internal/models"
)

func TestResponseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectExec("INSERT INTO responses").
		WillReturnResult(sqlmock.NewResult(0, 1))

	value := "consent_yes"
	participantID := "p-1"
	resp := &models.Response{
		ParticipantID: &participantID,
		QuestionID:    "q-1",
		ResponseType:  "interactive",
		ResponseValue: &value,
	}
	err := repo.Create(context.Background(), resp)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryListForExport(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	value := "Abu Dhabi"
	mock.ExpectQuery("SELECT (.+) FROM responses r").
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{
			"response_id", "participant_id", "question_id", "question_prompt",
			"survey_id", "survey_name", "response_type", "response_value", "file_path", "timestamp",
			"emirati_citizenship", "age_group", "place_of_birth", "current_residence",
			"consent_read_form", "consent_required", "consent_optional", "consent_optional_alternative",
		}).AddRow(
			"r-1", "p-1", "q-1", "Where were you born?",
			"s-1", "default", "text", value, nil, time.Now(),
			true, 3, "Abu Dhabi", "Dubai",
			true, true, false, nil,
		))

	rows, err := repo.ListForExport(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r-1", rows[0].ResponseID)
	require.NotNil(t, rows[0].AgeGroup)
	assert.Equal(t, 3, *rows[0].AgeGroup)
	assert.Nil(t, rows[0].ConsentOptionalAlt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
