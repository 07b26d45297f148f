package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
	"github.com/ramsalab/survey-api/pkg/export"
	"github.com/ramsalab/survey-api/pkg/jobs"
	"github.com/ramsalab/survey-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	List(ctx context.Context, limit int) ([]models.ExportJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type exportRowLister interface {
	ListForExport(ctx context.Context, surveyName string) ([]models.ExportRow, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type mediaReader interface {
	Open(filename string) (*os.File, error)
}

type exportMetrics interface {
	ExportJobFinished(status string)
}

// ExportLinks is the signed download descriptor returned to API callers.
type ExportLinks struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

// ExportService generates survey datasets asynchronously: responses joined
// with demographics as CSV, optionally bundled with the referenced media in
// a zip archive. Downloads go through HMAC-signed URLs.
type ExportService struct {
	exports   exportJobStore
	responses exportRowLister
	storage   exportStorage
	media     mediaReader
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	metrics   exportMetrics
	validate  *validator.Validate
	logger    *zap.Logger
	apiPrefix string
}

// NewExportService constructs an ExportService. The background queue is
// created here and must be started by the caller.
func NewExportService(
	exports exportJobStore,
	responses exportRowLister,
	store exportStorage,
	media mediaReader,
	signer *storage.SignedURLSigner,
	metrics exportMetrics,
	queueCfg jobs.QueueConfig,
	apiPrefix string,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		exports:   exports,
		responses: responses,
		storage:   store,
		media:     media,
		signer:    signer,
		metrics:   metrics,
		validate:  validator.New(),
		logger:    logger,
		apiPrefix: apiPrefix,
	}
	s.queue = jobs.NewQueue("exports", s.runJob, queueCfg)
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Enqueue creates a pending job record and schedules it.
func (s *ExportService) Enqueue(ctx context.Context, req dto.CreateExportRequest) (*models.ExportJob, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	job := &models.ExportJob{
		SurveyName:   &req.SurveyName,
		IncludeMedia: req.IncludeMedia,
	}
	if err := s.exports.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "export"}); err != nil {
		reason := "export queue unavailable"
		if markErr := s.exports.MarkFailed(ctx, job.ID, reason); markErr != nil {
			s.logger.Error("failed to mark unqueued export job", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, err
	}
	return job, nil
}

// Get returns one job record.
func (s *ExportService) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	return s.exports.GetByID(ctx, id)
}

// List returns recent job records.
func (s *ExportService) List(ctx context.Context, limit int) ([]models.ExportJob, error) {
	return s.exports.List(ctx, limit)
}

// Links signs a download URL for a completed job.
func (s *ExportService) Links(job *models.ExportJob) (*ExportLinks, error) {
	if job.Status != models.ExportStatusCompleted || job.FilePath == nil {
		return nil, fmt.Errorf("export job %s has no artifact", job.ID)
	}
	token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
	if err != nil {
		return nil, err
	}
	return &ExportLinks{
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/download?token=%s", s.apiPrefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenArtifact validates a signed token and opens the artifact for download.
func (s *ExportService) OpenArtifact(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", err
	}
	f, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", err
	}
	return f, path.Base(relPath), nil
}

func (s *ExportService) runJob(ctx context.Context, job jobs.Job) error {
	record, err := s.exports.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record == nil {
		s.logger.Warn("export job record missing", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.exports.MarkRunning(ctx, record.ID); err != nil {
		return err
	}

	relPath, err := s.generate(ctx, record)
	if err != nil {
		s.logger.Error("export generation failed", zap.String("job_id", record.ID), zap.Error(err))
		if markErr := s.exports.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record export failure", zap.String("job_id", record.ID), zap.Error(markErr))
		}
		if s.metrics != nil {
			s.metrics.ExportJobFinished(models.ExportStatusFailed)
		}
		return nil
	}

	if err := s.exports.MarkCompleted(ctx, record.ID, relPath); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ExportJobFinished(models.ExportStatusCompleted)
	}
	s.logger.Info("export completed", zap.String("job_id", record.ID), zap.String("file", relPath))
	return nil
}

func (s *ExportService) generate(ctx context.Context, job *models.ExportJob) (string, error) {
	surveyName := ""
	if job.SurveyName != nil {
		surveyName = *job.SurveyName
	}
	rows, err := s.responses.ListForExport(ctx, surveyName)
	if err != nil {
		return "", err
	}

	payload, err := export.NewCSVExporter().Render(buildExportDataset(rows))
	if err != nil {
		return "", err
	}

	if !job.IncludeMedia {
		filename := fmt.Sprintf("exports/%s.csv", job.ID)
		return s.storage.Save(filename, payload)
	}

	entries := []export.ZipEntry{{Name: "responses.csv", Data: payload}}
	opened := make([]*os.File, 0)
	defer func() {
		for _, f := range opened {
			f.Close() //nolint:errcheck
		}
	}()
	for _, row := range rows {
		if row.FilePath == nil || *row.FilePath == "" {
			continue
		}
		f, err := s.media.Open(*row.FilePath)
		if err != nil {
			s.logger.Warn("export skipping unreadable media",
				zap.String("job_id", job.ID),
				zap.String("file", *row.FilePath),
				zap.Error(err),
			)
			continue
		}
		opened = append(opened, f)
		entries = append(entries, export.ZipEntry{Name: path.Join("media", *row.FilePath), Reader: f})
	}

	var buf bytes.Buffer
	if err := export.NewZipExporter().Write(&buf, entries); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("exports/%s.zip", job.ID)
	return s.storage.Save(filename, buf.Bytes())
}

// buildExportDataset flattens joined rows into the CSV table: one row per
// response with its question, survey and participant demographic columns.
func buildExportDataset(rows []models.ExportRow) export.Dataset {
	headers := []string{
		"response_id", "participant_id", "survey_name", "question_id", "question_prompt",
		"response_type", "response_value", "file_path", "timestamp",
		"emirati_citizenship", "age_group", "place_of_birth", "current_residence",
		"consent_read_form", "consent_required", "consent_optional", "consent_optional_alternative",
	}
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]string{
			"response_id":                  r.ResponseID,
			"participant_id":               strPtr(r.ParticipantID),
			"survey_name":                  r.SurveyName,
			"question_id":                  r.QuestionID,
			"question_prompt":              r.QuestionPrompt,
			"response_type":                r.ResponseType,
			"response_value":               strPtr(r.ResponseValue),
			"file_path":                    strPtr(r.FilePath),
			"timestamp":                    r.Timestamp.UTC().Format(time.RFC3339),
			"emirati_citizenship":          boolPtrStr(r.Citizenship),
			"age_group":                    intPtrStr(r.AgeGroup),
			"place_of_birth":               strPtr(r.PlaceOfBirth),
			"current_residence":            strPtr(r.CurrentResidence),
			"consent_read_form":            boolPtrStr(r.ConsentReadForm),
			"consent_required":             boolPtrStr(r.ConsentRequired),
			"consent_optional":             boolPtrStr(r.ConsentOptional),
			"consent_optional_alternative": boolPtrStr(r.ConsentOptionalAlt),
		})
	}
	return export.Dataset{Headers: headers, Rows: out}
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func boolPtrStr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func intPtrStr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
