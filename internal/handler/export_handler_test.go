package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/service"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
	"github.com/ramsalab/survey-api/pkg/response"
)

type fakeExportSrv struct {
	jobs       map[string]*models.ExportJob
	enqueued   []dto.CreateExportRequest
	enqueueErr error
	links      *service.ExportLinks
	artifact   string
}

func (f *fakeExportSrv) Enqueue(_ context.Context, req dto.CreateExportRequest) (*models.ExportJob, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, req)
	return &models.ExportJob{ID: "j-1", SurveyName: &req.SurveyName, Status: models.ExportStatusPending, IncludeMedia: req.IncludeMedia}, nil
}

func (f *fakeExportSrv) Get(_ context.Context, id string) (*models.ExportJob, error) {
	return f.jobs[id], nil
}

func (f *fakeExportSrv) List(context.Context, int) ([]models.ExportJob, error) {
	out := make([]models.ExportJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeExportSrv) Links(job *models.ExportJob) (*service.ExportLinks, error) {
	if job.Status != models.ExportStatusCompleted || f.links == nil {
		return nil, appErrors.ErrExportLinkInvalid
	}
	return f.links, nil
}

func (f *fakeExportSrv) OpenArtifact(token string) (*os.File, string, error) {
	if token != "good-token" || f.artifact == "" {
		return nil, "", appErrors.ErrExportLinkInvalid
	}
	file, err := os.Open(f.artifact)
	if err != nil {
		return nil, "", err
	}
	return file, "export.csv", nil
}

func TestExportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeExportSrv{}
	handler := NewExportHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/exports",
		strings.NewReader(`{"survey_name":"default","include_media":true}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, srv.enqueued, 1)
	assert.Equal(t, "default", srv.enqueued[0].SurveyName)
	assert.True(t, srv.enqueued[0].IncludeMedia)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "j-1", data["id"])
	assert.Equal(t, models.ExportStatusPending, data["status"])
}

func TestExportHandlerCreateRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(`{`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerGetIncludesDownloadLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := "exports/j-1.csv"
	srv := &fakeExportSrv{
		jobs: map[string]*models.ExportJob{
			"j-1": {ID: "j-1", Status: models.ExportStatusCompleted, FilePath: &path},
		},
		links: &service.ExportLinks{Token: "tok", URL: "/api/v1/exports/download?token=tok", ExpiresAt: time.Now().Add(time.Hour)},
	}
	handler := NewExportHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/j-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "j-1"}}

	handler.Get(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/api/v1/exports/download?token=tok", data["download_url"])
}

func TestExportHandlerGetMissingJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportSrv{jobs: map[string]*models.ExportJob{}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	artifact := t.TempDir() + "/export.csv"
	require.NoError(t, os.WriteFile(artifact, []byte("response_id\nr-1\n"), 0o600))
	handler := NewExportHandler(&fakeExportSrv{artifact: artifact})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=good-token", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "export.csv")
	assert.Equal(t, "response_id\nr-1\n", rec.Body.String())
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=forged", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
