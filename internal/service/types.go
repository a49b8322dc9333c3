package service

import (
	"context"

	"wachat/internal/models"
)

// MessageStore is the thread-message persistence surface the services need.
type MessageStore interface {
	CreateThreadMessage(ctx context.Context, msg *models.ThreadMessage) (int64, error)
	GetThreadMessage(ctx context.Context, id int64) (*models.ThreadMessage, error)
	UpdateThreadDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus, errorMessage *string) error
	LinkDeliveryRecord(ctx context.Context, messageID, deliveryRecordID int64) error
	SetExternalMessageID(ctx context.Context, messageID int64, externalID string) error
	GetLatestInboundMessage(ctx context.Context, conversationID int64) (*models.ThreadMessage, error)
	ListMessages(ctx context.Context, conversationID, userID int64, offset, limit int) (*models.MessagePage, error)
}

// DeliveryStore is the delivery-record persistence surface.
type DeliveryStore interface {
	CreateDeliveryRecord(ctx context.Context, rec *models.DeliveryRecord) (int64, error)
	GetDeliveryRecord(ctx context.Context, id int64) (*models.DeliveryRecord, error)
	GetDeliveryRecordByProviderID(ctx context.Context, providerMessageID string) (*models.DeliveryRecord, error)
	UpdateDeliveryState(ctx context.Context, id int64, state models.DeliveryState, errorMessage *string) error
	SetDeliveryFailure(ctx context.Context, id int64, failureType models.FailureType, errorMessage string) error
	SetProviderMessageID(ctx context.Context, id int64, providerMessageID string) error
	IncrementDeliveryRetry(ctx context.Context, id int64) error
	ListRetryableDeliveries(ctx context.Context, maxAttempts, limit int) ([]*models.DeliveryRecord, error)
}

// AccountStore resolves provider credentials and approved templates.
type AccountStore interface {
	GetActiveAccount(ctx context.Context) (*models.Account, error)
	FindApprovedTemplateByName(ctx context.Context, accountID int64, name string) (*models.Template, error)
	FindApprovedTemplateByCategory(ctx context.Context, accountID int64, category string) (*models.Template, error)
}

// ConversationStore is the conversation and membership persistence surface.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) (int64, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	GetConversationByPhone(ctx context.Context, normalizedPhone string) (*models.Conversation, error)
	EnsureMembership(ctx context.Context, conversationID, userID int64) error
	IncrementUnreadCounts(ctx context.Context, conversationID, exceptUserID int64) error
	ListConversations(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error)
}

// AttachmentStore is the blob-store surface.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, conversationID int64, fileName, mimeType string, data []byte) (int64, error)
	GetAttachment(ctx context.Context, id int64) (*models.Attachment, error)
	GetAttachmentData(ctx context.Context, id int64) (*models.Attachment, []byte, error)
	ClearOldAttachmentData(ctx context.Context, retentionDays int) error
}
