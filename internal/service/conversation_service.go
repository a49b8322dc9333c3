package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"wachat/internal/constants"
	"wachat/internal/errors"
	"wachat/internal/models"
	"wachat/internal/privacy"
	"wachat/internal/validation"
)

// ConversationService is the application-facing surface: conversation list,
// message pages, outbound sends, and inbound ingestion.
type ConversationService interface {
	ListConversations(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error)
	ListMessages(ctx context.Context, conversationID, userID int64, offset, limit int) (*models.MessagePage, error)
	CreateConversation(ctx context.Context, userID int64, name, counterpartyName, phone string) (*models.Conversation, error)
	SendMessage(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error)
	IngestInbound(ctx context.Context, phone, body, providerMessageID string) (*models.ThreadMessage, error)
	UploadAttachment(ctx context.Context, conversationID int64, fileName, mimeType string, data []byte) (*models.Attachment, error)
	GetAttachmentData(ctx context.Context, id int64) (*models.Attachment, []byte, error)
}

type conversationService struct {
	conversations ConversationStore
	messages      MessageStore
	deliveries    DeliveryStore
	attachments   AttachmentStore
	reconciler    Reconciler
	logger        *logrus.Logger
}

func NewConversationService(
	conversations ConversationStore,
	messages MessageStore,
	deliveries DeliveryStore,
	attachments AttachmentStore,
	reconciler Reconciler,
	logger *logrus.Logger,
) ConversationService {
	return &conversationService{
		conversations: conversations,
		messages:      messages,
		deliveries:    deliveries,
		attachments:   attachments,
		reconciler:    reconciler,
		logger:        logger,
	}
}

func (s *conversationService) ListConversations(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error) {
	offset, limit = clampPage(offset, limit, constants.DefaultConversationPageSize)

	page, err := s.conversations.ListConversations(ctx, userID, offset, limit, searchTerm)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to list conversations")
	}

	// Previews are plain text regardless of how the body was authored.
	for i := range page.Items {
		page.Items[i].LastMessage = validation.StripHTML(page.Items[i].LastMessage)
	}
	return page, nil
}

func (s *conversationService) ListMessages(ctx context.Context, conversationID, userID int64, offset, limit int) (*models.MessagePage, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to load conversation")
	}
	if conv == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "conversation not found")
	}

	if err := s.conversations.EnsureMembership(ctx, conversationID, userID); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to ensure membership")
	}

	offset, limit = clampPage(offset, limit, constants.DefaultMessagePageSize)

	page, err := s.messages.ListMessages(ctx, conversationID, userID, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to list messages")
	}
	return page, nil
}

func (s *conversationService) CreateConversation(ctx context.Context, userID int64, name, counterpartyName, phone string) (*models.Conversation, error) {
	normalized := validation.NormalizePhone(phone)
	if err := validation.ValidatePhoneNumber(normalized); err != nil {
		return nil, err
	}

	if existing, err := s.conversations.GetConversationByPhone(ctx, normalized); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to check existing conversation")
	} else if existing != nil {
		if err := s.conversations.EnsureMembership(ctx, existing.ID, userID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to join conversation")
		}
		return existing, nil
	}

	if name == "" {
		name = normalized
	}
	conv := &models.Conversation{
		Name:              name,
		CounterpartyName:  counterpartyName,
		CounterpartyPhone: normalized,
		CreatedBy:         userID,
	}

	id, err := s.conversations.CreateConversation(ctx, conv)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to create conversation")
	}
	conv.ID = id

	s.logger.WithFields(logrus.Fields{
		"conversationId": id,
		"phone":          privacy.MaskPhoneNumber(normalized),
	}).Info("Created conversation")

	return conv, nil
}

// SendMessage creates the outbound thread message, bumps unread counters for
// the other members, and hands the message to the reconciler for delivery.
// The message starts in the optimistic sent status; routing failures downgrade
// it to failed.
func (s *conversationService) SendMessage(ctx context.Context, conversationID, userID int64, authorName, body string, attachmentIDs []int64) (*models.ThreadMessage, error) {
	if len(attachmentIDs) == 0 {
		if err := validation.ValidateMessageBody(body); err != nil {
			return nil, err
		}
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to load conversation")
	}
	if conv == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "conversation not found")
	}

	if err := s.conversations.EnsureMembership(ctx, conversationID, userID); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to ensure membership")
	}

	attachments, err := s.resolveAttachments(ctx, attachmentIDs)
	if err != nil {
		return nil, err
	}

	phone := conv.CounterpartyPhone
	msg := &models.ThreadMessage{
		ConversationID:    conversationID,
		AuthorID:          &userID,
		AuthorName:        authorName,
		Body:              validation.StripHTML(body),
		Direction:         models.DirectionOutbound,
		ExternalChannel:   true,
		DeliveryStatus:    models.DeliveryStatusSent,
		CounterpartyPhone: &phone,
		Attachments:       attachments,
	}

	id, err := s.messages.CreateThreadMessage(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to create message")
	}
	msg.ID = id

	if err := s.conversations.IncrementUnreadCounts(ctx, conversationID, userID); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to update unread counts")
	}

	if err := s.reconciler.RouteOutbound(ctx, msg, conv); err != nil {
		s.logger.WithError(err).WithField("messageId", id).Warn("Outbound routing failed")
	}

	stored, err := s.messages.GetThreadMessage(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to reload message")
	}
	return stored, nil
}

// IngestInbound records a message received from the provider. The
// conversation is resolved by normalized phone, created on first contact.
// Every member's unread counter is bumped; inbound messages have no internal
// author.
func (s *conversationService) IngestInbound(ctx context.Context, phone, body, providerMessageID string) (*models.ThreadMessage, error) {
	normalized := validation.NormalizePhone(phone)
	if err := validation.ValidatePhoneNumber(normalized); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetConversationByPhone(ctx, normalized)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to look up conversation")
	}
	if conv == nil {
		conv = &models.Conversation{
			Name:              normalized,
			CounterpartyPhone: normalized,
		}
		conv.ID, err = s.conversations.CreateConversation(ctx, conv)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to create conversation")
		}
		s.logger.WithFields(logrus.Fields{
			"conversationId": conv.ID,
			"phone":          privacy.MaskPhoneNumber(normalized),
		}).Info("Created conversation from inbound message")
	}

	var externalID *string
	if providerMessageID != "" {
		externalID = &providerMessageID
	}
	msg := &models.ThreadMessage{
		ConversationID:    conv.ID,
		Body:              validation.StripHTML(body),
		Direction:         models.DirectionInbound,
		ExternalChannel:   true,
		DeliveryStatus:    models.DeliveryStatusDelivered,
		ExternalMessageID: externalID,
		CounterpartyPhone: &normalized,
	}

	msg.ID, err = s.messages.CreateThreadMessage(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to create inbound message")
	}

	rec := &models.DeliveryRecord{
		PhoneRaw:          phone,
		PhoneNormalized:   normalized,
		Direction:         models.DirectionInbound,
		State:             models.DeliveryStateDelivered,
		ThreadMessageID:   msg.ID,
		BodyText:          msg.Body,
		ProviderMessageID: externalID,
	}
	recID, err := s.deliveries.CreateDeliveryRecord(ctx, rec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to create inbound delivery record")
	}
	if err := s.messages.LinkDeliveryRecord(ctx, msg.ID, recID); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to link delivery record")
	}

	// User id 0 is never a member, so every member counts as unread.
	if err := s.conversations.IncrementUnreadCounts(ctx, conv.ID, 0); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to update unread counts")
	}

	s.logger.WithFields(logrus.Fields{
		"conversationId": conv.ID,
		"messageId":      msg.ID,
		"phone":          privacy.MaskPhoneNumber(normalized),
	}).Info("Ingested inbound message")

	return msg, nil
}

func (s *conversationService) UploadAttachment(ctx context.Context, conversationID int64, fileName, mimeType string, data []byte) (*models.Attachment, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "attachment payload cannot be empty")
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to load conversation")
	}
	if conv == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "conversation not found")
	}

	id, err := s.attachments.CreateAttachment(ctx, conversationID, fileName, mimeType, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to store attachment")
	}
	return s.attachments.GetAttachment(ctx, id)
}

func (s *conversationService) GetAttachmentData(ctx context.Context, id int64) (*models.Attachment, []byte, error) {
	att, data, err := s.attachments.GetAttachmentData(ctx, id)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to load attachment")
	}
	if att == nil {
		return nil, nil, errors.New(errors.ErrCodeNotFound, "attachment not found")
	}
	return att, data, nil
}

func (s *conversationService) resolveAttachments(ctx context.Context, ids []int64) ([]models.Attachment, error) {
	var attachments []models.Attachment
	for _, id := range ids {
		att, err := s.attachments.GetAttachment(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to load attachment")
		}
		if att == nil {
			return nil, errors.New(errors.ErrCodeNotFound, "attachment not found").WithContext("attachmentId", id)
		}
		attachments = append(attachments, *att)
	}
	return attachments, nil
}

func clampPage(offset, limit, defaultLimit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	return offset, limit
}
