package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsalab/survey-api/internal/dto"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

type fakeWebhookSrv struct {
	verifyToken string
	handled     []*dto.WebhookPayload
	handleErr   error
}

func (f *fakeWebhookSrv) Verify(mode, token, challenge string) (string, error) {
	if mode == "subscribe" && token == f.verifyToken {
		return challenge, nil
	}
	return "", appErrors.ErrVerificationFailed
}

func (f *fakeWebhookSrv) HandleEvent(_ context.Context, payload *dto.WebhookPayload) error {
	f.handled = append(f.handled, payload)
	return f.handleErr
}

func TestWebhookHandlerVerifyEchoesChallenge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(&fakeWebhookSrv{verifyToken: "secret"})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42424242", nil)

	handler.Verify(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	// The provider expects the bare challenge, not a JSON envelope.
	assert.Equal(t, "42424242", rec.Body.String())
}

func TestWebhookHandlerVerifyRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(&fakeWebhookSrv{verifyToken: "secret"})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42424242", nil)

	handler.Verify(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookHandlerReceiveAcknowledges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeWebhookSrv{}
	handler := NewWebhookHandler(srv)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","messages":[{"id":"wamid.1","from":"971500000001","type":"text","text":{"body":"hi"}}]}}]}]}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Receive(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	require.Len(t, srv.handled, 1)
	require.Len(t, srv.handled[0].Entry, 1)
	assert.Equal(t, "wamid.1", srv.handled[0].Entry[0].Changes[0].Value.Messages[0].ID)
}

func TestWebhookHandlerReceiveAcknowledgesProtocolViolations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeWebhookSrv{handleErr: appErrors.ErrProtocolViolation}
	handler := NewWebhookHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(`{"object":"x","entry":[]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Receive(c)

	// Participant mistakes must not trigger provider retries.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandlerReceiveSurfacesInfrastructureFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeWebhookSrv{handleErr: appErrors.ErrInternal}
	handler := NewWebhookHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(`{"object":"x","entry":[]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Receive(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookHandlerReceiveRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(&fakeWebhookSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(`{"entry":`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Receive(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
