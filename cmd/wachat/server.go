package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"wachat/internal/errors"
	"wachat/internal/middleware"
	"wachat/internal/models"
	"wachat/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxAttachmentUploadBytes = 32 << 20

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	convService service.ConversationService
	reconciler  service.Reconciler
	server      *http.Server
	cfg         *models.Config
}

func NewServer(cfg *models.Config, convService service.ConversationService, reconciler service.Reconciler, logger *logrus.Logger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		convService: convService,
		reconciler:  reconciler,
		cfg:         cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/conversations", s.handleListConversations()).Methods(http.MethodGet)
	api.HandleFunc("/conversations", s.handleCreateConversation()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id:[0-9]+}/attachments", s.handleUploadAttachment()).Methods(http.MethodPost)
	api.HandleFunc("/attachments/{id:[0-9]+}", s.handleGetAttachment()).Methods(http.MethodGet)

	webhooks := s.router.PathPrefix("/webhook").Subrouter()
	webhooks.HandleFunc("/status", s.handleStatusWebhook()).Methods(http.MethodPost)
	webhooks.HandleFunc("/inbound", s.handleInboundWebhook()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.requireUser(w, r)
		if !ok {
			return
		}

		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 0)
		search := r.URL.Query().Get("search")

		page, err := s.convService.ListConversations(r.Context(), userID, offset, limit, search)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleCreateConversation() http.HandlerFunc {
	type request struct {
		Name             string `json:"name"`
		CounterpartyName string `json:"counterpartyName"`
		Phone            string `json:"phone"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.requireUser(w, r)
		if !ok {
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}

		conv, err := s.convService.CreateConversation(r.Context(), userID, req.Name, req.CounterpartyName, req.Phone)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.requireUser(w, r)
		if !ok {
			return
		}
		conversationID, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 0)

		page, err := s.convService.ListMessages(r.Context(), conversationID, userID, offset, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	type request struct {
		Body          string  `json:"body"`
		AuthorName    string  `json:"authorName"`
		AttachmentIDs []int64 `json:"attachmentIds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.requireUser(w, r)
		if !ok {
			return
		}
		conversationID, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}

		msg, err := s.convService.SendMessage(r.Context(), conversationID, userID, req.AuthorName, req.Body, req.AttachmentIDs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func (s *Server) handleUploadAttachment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireUser(w, r); !ok {
			return
		}
		conversationID, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := r.ParseMultipartForm(maxAttachmentUploadBytes); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid multipart payload"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "missing file field"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxAttachmentUploadBytes))
		if err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read upload"))
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		att, err := s.convService.UploadAttachment(r.Context(), conversationID, header.Filename, mimeType, data)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, att)
	}
}

func (s *Server) handleGetAttachment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		att, data, err := s.convService.GetAttachmentData(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(data) == 0 {
			s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "attachment payload expired"))
			return
		}

		w.Header().Set("Content-Type", att.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			s.logger.WithError(err).Warn("Failed to write attachment response")
		}
	}
}

// handleStatusWebhook applies provider delivery callbacks. Unknown provider
// message ids acknowledge with ignored so the provider does not keep
// re-posting callbacks we can never match.
func (s *Server) handleStatusWebhook() http.HandlerFunc {
	type request struct {
		ProviderMessageID string `json:"providerMessageId"`
		Status            string `json:"status"`
		Error             string `json:"error"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}
		if req.ProviderMessageID == "" {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "providerMessageId is required"))
			return
		}

		state, ok := callbackState(req.Status)
		if !ok {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "unknown delivery status"))
			return
		}

		err := s.reconciler.ApplyDeliveryState(r.Context(), req.ProviderMessageID, state, req.Error)
		if err != nil {
			if errors.GetCode(err) == errors.ErrCodeNotFound {
				s.logger.WithField("status", req.Status).Warn("Status callback for unknown delivery")
				writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
				return
			}
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
	}
}

func (s *Server) handleInboundWebhook() http.HandlerFunc {
	type request struct {
		From      string `json:"from"`
		Body      string `json:"body"`
		MessageID string `json:"messageId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}

		msg, err := s.convService.IngestInbound(r.Context(), req.From, req.Body, req.MessageID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// requireUser resolves the caller identity from the X-User-ID header.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "X-User-ID header is required"))
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "X-User-ID must be a positive integer"))
		return 0, false
	}
	return userID, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := statusForCode(code)

	if status >= 500 {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	} else {
		s.logger.WithError(err).WithField("path", r.URL.Path).Debug("Request rejected")
	}

	message := err.Error()
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeNoAccount, errors.ErrCodeTemplateError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func callbackState(status string) (models.DeliveryState, bool) {
	switch status {
	case "sent":
		return models.DeliveryStateSent, true
	case "delivered":
		return models.DeliveryStateDelivered, true
	case "read":
		return models.DeliveryStateRead, true
	case "error", "failed":
		return models.DeliveryStateError, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid id")
	}
	return id, nil
}
