package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
	"github.com/ramsalab/survey-api/pkg/jobs"
	"github.com/ramsalab/survey-api/pkg/storage"
)

func TestBuildExportDataset(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := []models.ExportRow{
		{
			ResponseID:     "r-1",
			ParticipantID:  strP("p-1"),
			QuestionID:     "q-1",
			QuestionPrompt: "How was your day?",
			SurveyName:     "default",
			ResponseType:   "text",
			ResponseValue:  strP("fine"),
			Timestamp:      ts,
			Citizenship:    boolPtr(true),
			AgeGroup:       intPtr(3),
		},
		{
			ResponseID:   "r-2",
			QuestionID:   "q-2",
			SurveyName:   "default",
			ResponseType: "audio",
			FilePath:     strP("q-2/p-1_a.ogg"),
			Timestamp:    ts,
		},
	}

	ds := buildExportDataset(rows)
	require.Len(t, ds.Headers, 17)
	require.Len(t, ds.Rows, 2)

	first := ds.Rows[0]
	assert.Equal(t, "r-1", first["response_id"])
	assert.Equal(t, "p-1", first["participant_id"])
	assert.Equal(t, "fine", first["response_value"])
	assert.Equal(t, "2026-03-14T09:30:00Z", first["timestamp"])
	assert.Equal(t, "true", first["emirati_citizenship"])
	assert.Equal(t, "3", first["age_group"])
	assert.Equal(t, "", first["consent_required"])

	second := ds.Rows[1]
	assert.Equal(t, "", second["participant_id"])
	assert.Equal(t, "q-2/p-1_a.ogg", second["file_path"])
	assert.Equal(t, "", second["response_value"])
}

func TestEnqueueRejectsEmptySurveyName(t *testing.T) {
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(nil, nil, nil, nil, signer, nil, jobs.QueueConfig{}, "/api/v1", zap.NewNop())

	_, err := svc.Enqueue(context.Background(), dto.CreateExportRequest{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportLinksRequireCompletedJob(t *testing.T) {
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(nil, nil, nil, nil, signer, nil, jobs.QueueConfig{}, "/api/v1", zap.NewNop())

	_, err := svc.Links(&models.ExportJob{ID: "j-1", Status: models.ExportStatusPending})
	require.Error(t, err)

	path := "exports/j-1.csv"
	links, err := svc.Links(&models.ExportJob{ID: "j-1", Status: models.ExportStatusCompleted, FilePath: &path})
	require.NoError(t, err)
	assert.NotEmpty(t, links.Token)
	assert.Contains(t, links.URL, "/api/v1/exports/download?token=")
	assert.True(t, links.ExpiresAt.After(time.Now()))

	jobID, relPath, _, err := signer.Parse(links.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "j-1", jobID)
	assert.Equal(t, path, relPath)
}
