package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/pkg/config"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

// Extensions for the fixed mime-type allowlist. Anything else is rejected
// as an error, never silently skipped.
var mimeExtensions = map[string]string{
	"video/mp4":              ".mp4",
	"image/webp":             ".webp",
	"audio/ogg; codecs=opus": ".ogg",
	"audio/ogg":              ".ogg",
	"image/jpeg":             ".jpeg",
	"application/pdf":        ".pdf",
}

// StoredMedia is the durable result of ingesting one inbound attachment.
type StoredMedia struct {
	Ref      string
	MimeType string
	Caption  *string
	Voice    *bool
	Animated *bool
}

type blobStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

// Ingestor fetches channel-hosted media and persists it to durable storage,
// returning a stable reference.
type Ingestor struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	store       blobStore
	logger      *zap.Logger
}

// NewIngestor constructs an ingestor writing into store.
func NewIngestor(cfg config.WhatsAppConfig, media config.MediaConfig, store blobStore, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		httpClient:  &http.Client{Timeout: media.FetchTimeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		store:       store,
		logger:      logger,
	}
}

// Ingest downloads the referenced media and stores it under
// <questionID>/<participantID>_<uuid><ext>. The download is streamed into
// storage without buffering the whole file.
func (i *Ingestor) Ingest(ctx context.Context, media *dto.MediaDescriptor, questionID, participantID string) (*StoredMedia, error) {
	ext, ok := mimeExtensions[media.MimeType]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMediaType, fmt.Sprintf("unsupported mime type %q", media.MimeType))
	}

	url, err := i.resolveURL(ctx, media.RemoteID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMediaFetchFailed.Code, appErrors.ErrMediaFetchFailed.Status, "build media download request")
	}
	req.Header.Set("Authorization", "Bearer "+i.accessToken)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMediaFetchFailed.Code, appErrors.ErrMediaFetchFailed.Status, "download media")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrMediaFetchFailed, fmt.Sprintf("media download returned status %d", resp.StatusCode))
	}

	filename := path.Join(questionID, fmt.Sprintf("%s_%s%s", participantID, uuid.NewString(), ext))
	ref, err := i.store.SaveStream(filename, resp.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist media")
	}

	i.logger.Info("media ingested",
		zap.String("remote_id", media.RemoteID),
		zap.String("mime_type", media.MimeType),
		zap.String("ref", ref),
	)

	return &StoredMedia{
		Ref:      ref,
		MimeType: media.MimeType,
		Caption:  media.Caption,
		Voice:    media.Voice,
		Animated: media.Animated,
	}, nil
}

func (i *Ingestor) resolveURL(ctx context.Context, remoteID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", i.baseURL, remoteID), nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrMediaFetchFailed.Code, appErrors.ErrMediaFetchFailed.Status, "build media url request")
	}
	req.Header.Set("Authorization", "Bearer "+i.accessToken)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrMediaFetchFailed.Code, appErrors.ErrMediaFetchFailed.Status, "resolve media url")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return "", appErrors.Clone(appErrors.ErrMediaFetchFailed, fmt.Sprintf("media url lookup returned status %d", resp.StatusCode))
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrMediaFetchFailed.Code, appErrors.ErrMediaFetchFailed.Status, "decode media url response")
	}
	if payload.URL == "" {
		return "", appErrors.Clone(appErrors.ErrMediaFetchFailed, "media url missing from lookup response")
	}
	return payload.URL, nil
}
