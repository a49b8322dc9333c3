package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat/internal/errors"
	"wachat/internal/models"
)

type stubConversationService struct {
	listConversationsFn func(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error)
	listMessagesFn      func(ctx context.Context, conversationID, userID int64, offset, limit int) (*models.MessagePage, error)
	sendMessageFn       func(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error)
	ingestInboundFn     func(ctx context.Context, phone, body, providerMessageID string) (*models.ThreadMessage, error)
}

func (s *stubConversationService) ListConversations(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error) {
	return s.listConversationsFn(ctx, userID, offset, limit, searchTerm)
}

func (s *stubConversationService) ListMessages(ctx context.Context, conversationID, userID int64, offset, limit int) (*models.MessagePage, error) {
	return s.listMessagesFn(ctx, conversationID, userID, offset, limit)
}

func (s *stubConversationService) CreateConversation(ctx context.Context, userID int64, name, counterpartyName, phone string) (*models.Conversation, error) {
	return &models.Conversation{ID: 1, Name: name, CounterpartyPhone: phone, CreatedBy: userID}, nil
}

func (s *stubConversationService) SendMessage(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error) {
	return s.sendMessageFn(ctx, conversationID, userID, authorName, body, attachmentIDs)
}

func (s *stubConversationService) IngestInbound(ctx context.Context, phone, body, providerMessageID string) (*models.ThreadMessage, error) {
	return s.ingestInboundFn(ctx, phone, body, providerMessageID)
}

func (s *stubConversationService) UploadAttachment(ctx context.Context, conversationID int64, fileName, mimeType string, data []byte) (*models.Attachment, error) {
	return &models.Attachment{ID: 1, FileName: fileName, MimeType: mimeType}, nil
}

func (s *stubConversationService) GetAttachmentData(ctx context.Context, id int64) (*models.Attachment, []byte, error) {
	if id == 404 {
		return nil, nil, errors.New(errors.ErrCodeNotFound, "attachment not found")
	}
	return &models.Attachment{ID: id, FileName: "f.bin", MimeType: "application/octet-stream"}, []byte("data"), nil
}

type stubReconciler struct {
	applyFn func(ctx context.Context, providerMessageID string, state models.DeliveryState, errorDetail string) error
}

func (s *stubReconciler) RouteOutbound(ctx context.Context, msg *models.ThreadMessage, conv *models.Conversation) error {
	return nil
}

func (s *stubReconciler) ApplyDeliveryState(ctx context.Context, providerMessageID string, state models.DeliveryState, errorDetail string) error {
	return s.applyFn(ctx, providerMessageID, state, errorDetail)
}

func (s *stubReconciler) RetryDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	return nil
}

func newTestServer(convSvc *stubConversationService, rec *stubReconciler) *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &models.Config{}
	cfg.Server.Port = 0

	return NewServer(cfg, convSvc, rec, logger)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rr.Body.String())
}

func TestListConversationsRequiresUserHeader(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "X-User-ID")
}

func TestListConversationsRejectsBadUserHeader(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("X-User-ID", "abc")
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListConversationsPassesQueryParams(t *testing.T) {
	svc := &stubConversationService{
		listConversationsFn: func(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error) {
			assert.Equal(t, int64(7), userID)
			assert.Equal(t, 40, offset)
			assert.Equal(t, 10, limit)
			assert.Equal(t, "alice", searchTerm)
			return &models.ConversationPage{Items: []models.ConversationSummary{}, Offset: offset, Limit: limit}, nil
		},
	}
	server := newTestServer(svc, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations?offset=40&limit=10&search=alice", nil)
	req.Header.Set("X-User-ID", "7")
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSendMessageReturnsCreated(t *testing.T) {
	svc := &stubConversationService{
		sendMessageFn: func(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error) {
			assert.Equal(t, int64(5), conversationID)
			assert.Equal(t, int64(1), userID)
			assert.Equal(t, "hello", body)
			return &models.ThreadMessage{ID: 10, ConversationID: conversationID, Body: body,
				DeliveryStatus: models.DeliveryStatusSent}, nil
		},
	}
	server := newTestServer(svc, &stubReconciler{})

	payload := bytes.NewBufferString(`{"body": "hello", "authorName": "Alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/5/messages", payload)
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var msg models.ThreadMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.Equal(t, int64(10), msg.ID)
}

func TestSendMessageValidationErrorMapsTo400(t *testing.T) {
	svc := &stubConversationService{
		sendMessageFn: func(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "message body cannot be empty")
		},
	}
	server := newTestServer(svc, &stubReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/5/messages", bytes.NewBufferString(`{"body": ""}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendMessageUnknownConversationMapsTo404(t *testing.T) {
	svc := &stubConversationService{
		sendMessageFn: func(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error) {
			return nil, errors.New(errors.ErrCodeNotFound, "conversation not found")
		},
	}
	server := newTestServer(svc, &stubReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/99/messages", bytes.NewBufferString(`{"body": "hi"}`))
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusWebhookApplied(t *testing.T) {
	rec := &stubReconciler{
		applyFn: func(ctx context.Context, providerMessageID string, state models.DeliveryState, errorDetail string) error {
			assert.Equal(t, "wamid.abc", providerMessageID)
			assert.Equal(t, models.DeliveryStateDelivered, state)
			return nil
		},
	}
	server := newTestServer(&stubConversationService{}, rec)

	payload := bytes.NewBufferString(`{"providerMessageId": "wamid.abc", "status": "delivered"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/status", payload)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "applied")
}

func TestStatusWebhookUnknownDeliveryAcknowledged(t *testing.T) {
	rec := &stubReconciler{
		applyFn: func(ctx context.Context, providerMessageID string, state models.DeliveryState, errorDetail string) error {
			return errors.New(errors.ErrCodeNotFound, "no delivery record for provider message id")
		},
	}
	server := newTestServer(&stubConversationService{}, rec)

	payload := bytes.NewBufferString(`{"providerMessageId": "wamid.ghost", "status": "read"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/status", payload)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ignored")
}

func TestStatusWebhookRejectsUnknownStatus(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	payload := bytes.NewBufferString(`{"providerMessageId": "wamid.abc", "status": "teleported"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/status", payload)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusWebhookRequiresProviderMessageID(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	payload := bytes.NewBufferString(`{"status": "sent"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/status", payload)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInboundWebhook(t *testing.T) {
	svc := &stubConversationService{
		ingestInboundFn: func(ctx context.Context, phone, body, providerMessageID string) (*models.ThreadMessage, error) {
			assert.Equal(t, "15551234567", phone)
			assert.Equal(t, "hi there", body)
			assert.Equal(t, "wamid.in", providerMessageID)
			return &models.ThreadMessage{ID: 20, Body: body, Direction: models.DirectionInbound}, nil
		},
	}
	server := newTestServer(svc, &stubReconciler{})

	payload := bytes.NewBufferString(`{"from": "15551234567", "body": "hi there", "messageId": "wamid.in"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", payload)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var msg models.ThreadMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.Equal(t, int64(20), msg.ID)
}

func TestGetAttachmentServesBlob(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/3", nil)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "data", rr.Body.String())
}

func TestGetAttachmentNotFound(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/404", nil)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNonNumericPathRejected(t *testing.T) {
	server := newTestServer(&stubConversationService{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/abc/messages", nil)
	req.Header.Set("X-User-ID", "1")
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
