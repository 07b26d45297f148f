package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsalab/survey-api/internal/models"
)

func questionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "survey_id", "question_group_id", "prompt", "question_type",
		"prompt_number", "options", "required", "active", "created_at",
	})
}

func TestSurveyRepositoryFindByName(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	mock.ExpectQuery("SELECT id, name, description, created_at FROM surveys WHERE name").
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}).
			AddRow("s-1", "default", nil, time.Now()))

	s, err := repo.FindByName(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "s-1", s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyRepositoryFindByNameMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	mock.ExpectQuery("SELECT id, name, description, created_at FROM surveys WHERE name").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	s, err := repo.FindByName(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyRepositoryListQuestionsByPrompt(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	groupID := "g-1"
	mock.ExpectQuery("SELECT (.+) FROM questions\\s+WHERE survey_id").
		WithArgs("s-1", 2).
		WillReturnRows(questionRows().
			AddRow("q-1", "s-1", groupID, "First", models.QuestionText, 2, nil, true, true, time.Now()).
			AddRow("q-2", "s-1", groupID, "Second", models.QuestionText, 2, nil, true, true, time.Now()))

	questions, err := repo.ListQuestionsByPrompt(context.Background(), "s-1", 2)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "q-1", questions[0].ID)
	require.NotNil(t, questions[1].GroupID)
	assert.Equal(t, "g-1", *questions[1].GroupID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyRepositoryFindLogic(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	questionID := "q-1"
	next := "q-9"
	mock.ExpectQuery("SELECT (.+) FROM survey_logic").
		WithArgs("s-1", "opt_b", "q-1", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "survey_id", "question_id", "question_group_id", "response_option_id", "next_question_id"}).
			AddRow("l-1", "s-1", questionID, nil, "opt_b", next))

	logic, err := repo.FindLogic(context.Background(), "s-1", &questionID, nil, "opt_b")
	require.NoError(t, err)
	require.NotNil(t, logic)
	require.NotNil(t, logic.NextQuestionID)
	assert.Equal(t, "q-9", *logic.NextQuestionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyRepositoryFindLogicNoRule(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	groupID := "g-1"
	mock.ExpectQuery("SELECT (.+) FROM survey_logic").
		WillReturnError(sql.ErrNoRows)

	logic, err := repo.FindLogic(context.Background(), "s-1", nil, &groupID, "opt_a")
	require.NoError(t, err)
	assert.Nil(t, logic)
	assert.NoError(t, mock.ExpectationsWereMet())
}
