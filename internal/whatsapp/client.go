package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/pkg/config"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

// Button is one reply button of an outbound interactive message. The Cloud
// API caps a message at three buttons.
type Button struct {
	ID    string
	Title string
}

// Section is one section of an outbound list message.
type Section struct {
	Title string
	Rows  []Row
}

// Row is a selectable list row. Title is capped at 24 characters by the API.
type Row struct {
	ID          string
	Title       string
	Description string
}

// Client sends outbound messages through the WhatsApp Cloud API. Every send
// reports success or failure explicitly; callers must branch on the error
// before persisting state that depends on delivery.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	phoneNumberID string
	accessToken   string
	logger        *zap.Logger
}

// NewClient builds a Cloud API client from configuration.
func NewClient(cfg config.WhatsAppConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.SendTimeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		logger:        logger,
	}
}

func (c *Client) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSendFailed.Code, appErrors.ErrSendFailed.Status, "encode outbound message")
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSendFailed.Code, appErrors.ErrSendFailed.Status, "build outbound request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSendFailed.Code, appErrors.ErrSendFailed.Status, "outbound message delivery failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("whatsapp send rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail),
		)
		return appErrors.Clone(appErrors.ErrSendFailed, fmt.Sprintf("whatsapp api returned status %d", resp.StatusCode))
	}
	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        body,
		},
	})
}

func (c *Client) sendInteractive(ctx context.Context, to string, interactive map[string]interface{}) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
}

// SendButtons sends a button-choice message.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	replies := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		replies = append(replies, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	return c.sendInteractive(ctx, to, map[string]interface{}{
		"type":   "button",
		"body":   map[string]string{"text": body},
		"action": map[string]interface{}{"buttons": replies},
	})
}

// SendList sends a list-choice message.
func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, sections []Section) error {
	rendered := make([]map[string]interface{}, 0, len(sections))
	for _, s := range sections {
		rows := make([]map[string]string, 0, len(s.Rows))
		for _, r := range s.Rows {
			row := map[string]string{"id": r.ID, "title": r.Title}
			if r.Description != "" {
				row["description"] = r.Description
			}
			rows = append(rows, row)
		}
		rendered = append(rendered, map[string]interface{}{"title": s.Title, "rows": rows})
	}
	return c.sendInteractive(ctx, to, map[string]interface{}{
		"type":   "list",
		"body":   map[string]string{"text": body},
		"action": map[string]interface{}{"button": buttonLabel, "sections": rendered},
	})
}

// SendQuestion renders an arbitrary survey question as text, buttons or a
// list based on its type and options payload.
func (c *Client) SendQuestion(ctx context.Context, to string, q *models.Question) error {
	switch q.QuestionType {
	case models.QuestionText, models.QuestionAudio:
		return c.SendText(ctx, to, q.Prompt)

	case models.QuestionInteractive:
		opts, err := q.DecodeOptions()
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "decode question options")
		}
		if opts == nil {
			return appErrors.Clone(appErrors.ErrValidation, "interactive question has no options")
		}

		body := opts.BodyText
		if body == "" {
			body = q.Prompt
		}

		switch opts.InteractiveType {
		case "button":
			buttons := make([]Button, 0, len(opts.Buttons))
			for _, b := range opts.Buttons {
				buttons = append(buttons, Button{ID: b.ID, Title: b.Title})
			}
			return c.SendButtons(ctx, to, body, buttons)
		case "list":
			label := opts.Button
			if label == "" {
				label = "Select an option"
			}
			sections := make([]Section, 0, len(opts.Sections))
			for _, s := range opts.Sections {
				rows := make([]Row, 0, len(s.Rows))
				for _, r := range s.Rows {
					rows = append(rows, Row{ID: r.ID, Title: r.Title, Description: r.Description})
				}
				sections = append(sections, Section{Title: s.Title, Rows: rows})
			}
			return c.SendList(ctx, to, body, label, sections)
		default:
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported interactive type %q", opts.InteractiveType))
		}

	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported question type %q", q.QuestionType))
	}
}
