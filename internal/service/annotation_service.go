package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/pkg/config"
	"github.com/ramsalab/survey-api/pkg/jobs"
)

// annotationTask is the payload forwarded to the annotation platform for
// each audio response.
type annotationTask struct {
	Name         string          `json:"name"`
	ProjectID    int             `json:"project_id,omitempty"`
	Subset       string          `json:"subset"`
	ResponseID   string          `json:"response_id"`
	Demographics json.RawMessage `json:"response_demographics,omitempty"`
}

// AnnotationService forwards audio responses to the external annotation
// platform in the background: one task per response, then the file upload.
// Forwarding is best effort; a platform outage never blocks the survey flow.
type AnnotationService struct {
	httpClient *http.Client
	media      mediaReader
	queue      *jobs.Queue
	cfg        config.AnnotationConfig
	logger     *zap.Logger
}

// NewAnnotationService constructs an AnnotationService. The queue must be
// started by the caller; a disabled config yields a service whose Forward is
// a no-op.
func NewAnnotationService(cfg config.AnnotationConfig, media mediaReader, queueCfg jobs.QueueConfig, logger *zap.Logger) *AnnotationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AnnotationService{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		media:      media,
		cfg:        cfg,
		logger:     logger,
	}
	s.queue = jobs.NewQueue("annotation", s.runJob, queueCfg)
	return s
}

// Start launches the forwarding workers.
func (s *AnnotationService) Start(ctx context.Context) {
	if s.cfg.Enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the forwarding workers.
func (s *AnnotationService) Stop() {
	if s.cfg.Enabled {
		s.queue.Stop()
	}
}

// Forward schedules an audio response for annotation.
func (s *AnnotationService) Forward(resp *models.Response) {
	if !s.cfg.Enabled || resp.FilePath == nil {
		return
	}
	job := jobs.Job{ID: resp.ID, Type: "annotate", Payload: *resp}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("annotation queue full, dropping response", zap.String("response_id", resp.ID), zap.Error(err))
	}
}

func (s *AnnotationService) runJob(ctx context.Context, job jobs.Job) error {
	resp, ok := job.Payload.(models.Response)
	if !ok {
		s.logger.Error("annotation job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	taskID, err := s.createTask(ctx, &resp)
	if err != nil {
		return err
	}
	return s.uploadFile(ctx, taskID, &resp)
}

func (s *AnnotationService) createTask(ctx context.Context, resp *models.Response) (int, error) {
	task := annotationTask{
		Name:         fmt.Sprintf("response-%s", resp.ID),
		ProjectID:    s.cfg.ProjectID,
		Subset:       "audio_responses",
		ResponseID:   resp.ID,
		Demographics: resp.Metadata,
	}
	body, err := json.Marshal(task)
	if err != nil {
		return 0, fmt.Errorf("encode annotation task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build annotation request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("create annotation task: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("annotation task rejected with status %d", res.StatusCode)
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("decode annotation task response: %w", err)
	}
	s.logger.Info("created annotation task",
		zap.Int("task_id", created.ID),
		zap.String("response_id", resp.ID),
	)
	return created.ID, nil
}

func (s *AnnotationService) uploadFile(ctx context.Context, taskID int, resp *models.Response) error {
	f, err := s.media.Open(*resp.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Error("annotation upload skipped, media missing", zap.String("file", *resp.FilePath))
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", path.Base(*resp.FilePath))
	if err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("read media for upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finish upload form: %w", err)
	}

	url := fmt.Sprintf("%s/tasks/%d/data", s.cfg.APIURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload media to annotation task %d: %w", taskID, err)
	}
	defer res.Body.Close() //nolint:errcheck
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusAccepted {
		return fmt.Errorf("annotation upload rejected with status %d", res.StatusCode)
	}
	s.logger.Info("uploaded media to annotation task",
		zap.Int("task_id", taskID),
		zap.String("response_id", resp.ID),
	)
	return nil
}
