package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func participantRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "phone_number", "token", "survey_name", "last_prompt_sent", "last_question_asked",
		"emirati_citizenship", "age_group", "place_of_birth", "current_residence",
		"real_name_optional_input", "phone_number_optional_input",
		"consent_read_form", "consent_required", "consent_optional", "consent_optional_alternative",
		"demographics_and_consent_completed", "created_at", "updated_at",
	})
}

func TestParticipantRepositoryGetByPhone(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM participants WHERE phone_number").
		WithArgs("971500000001").
		WillReturnRows(participantRows().AddRow(
			"p-1", "971500000001", "tok-1", "default", nil, nil,
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			false, now, now,
		))

	p, err := repo.GetByPhone(context.Background(), "971500000001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, "tok-1", p.Token)
	assert.False(t, p.OnboardingCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryGetByPhoneMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM participants WHERE phone_number").
		WithArgs("971500000001").
		WillReturnError(sql.ErrNoRows)

	p, err := repo.GetByPhone(context.Background(), "971500000001")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryGetOrCreateInserts(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM participants WHERE phone_number").
		WithArgs("971500000001").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO participants").
		WithArgs(sqlmock.AnyArg(), "971500000001", sqlmock.AnyArg(), "default").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM participants WHERE phone_number").
		WithArgs("971500000001").
		WillReturnRows(participantRows().AddRow(
			"p-1", "971500000001", "tok-1", "default", nil, nil,
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			false, now, now,
		))

	p, err := repo.GetOrCreate(context.Background(), "971500000001", "default")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryGetOrCreateLosesRace(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM participants WHERE phone_number").
		WithArgs("971500000001").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO participants").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT (.+) FROM participants WHERE phone_number").
		WithArgs("971500000001").
		WillReturnRows(participantRows().AddRow(
			"winner", "971500000001", "tok-2", "default", nil, nil,
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			false, now, now,
		))

	p, err := repo.GetOrCreate(context.Background(), "971500000001", "default")
	require.NoError(t, err)
	assert.Equal(t, "winner", p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryUpdateCursor(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	prompt := 3
	question := "q-9"
	mock.ExpectExec("UPDATE participants SET last_prompt_sent").
		WithArgs("p-1", prompt, question).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateCursor(context.Background(), "p-1", &prompt, &question)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryUpdateCursorMissingRow(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectExec("UPDATE participants SET last_prompt_sent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCursor(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
