package service

import (
	"context"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/whatsapp"
)

type senderMetrics interface {
	MessageSent(kind string, ok bool)
}

// MeteredSender decorates a messageSender with outbound delivery counters.
type MeteredSender struct {
	next    messageSender
	metrics senderMetrics
}

// NewMeteredSender wraps the sender; a nil metrics sink passes through.
func NewMeteredSender(next messageSender, metrics senderMetrics) *MeteredSender {
	return &MeteredSender{next: next, metrics: metrics}
}

func (m *MeteredSender) observe(kind string, err error) error {
	if m.metrics != nil {
		m.metrics.MessageSent(kind, err == nil)
	}
	return err
}

func (m *MeteredSender) SendText(ctx context.Context, to, body string) error {
	return m.observe("text", m.next.SendText(ctx, to, body))
}

func (m *MeteredSender) SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) error {
	return m.observe("buttons", m.next.SendButtons(ctx, to, body, buttons))
}

func (m *MeteredSender) SendList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.Section) error {
	return m.observe("list", m.next.SendList(ctx, to, body, buttonLabel, sections))
}

func (m *MeteredSender) SendQuestion(ctx context.Context, to string, q *models.Question) error {
	return m.observe("question", m.next.SendQuestion(ctx, to, q))
}

type ingestMetrics interface {
	MediaIngested(mimeType string)
}

// MeteredIngestor decorates a mediaIngestor with an ingestion counter.
type MeteredIngestor struct {
	next    mediaIngestor
	metrics ingestMetrics
}

// NewMeteredIngestor wraps the ingestor; a nil metrics sink passes through.
func NewMeteredIngestor(next mediaIngestor, metrics ingestMetrics) *MeteredIngestor {
	return &MeteredIngestor{next: next, metrics: metrics}
}

func (m *MeteredIngestor) Ingest(ctx context.Context, media *dto.MediaDescriptor, questionID, participantID string) (*whatsapp.StoredMedia, error) {
	stored, err := m.next.Ingest(ctx, media, questionID, participantID)
	if err == nil && m.metrics != nil {
		m.metrics.MediaIngested(stored.MimeType)
	}
	return stored, err
}
