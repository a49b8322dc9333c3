package models

import "time"

type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ThreadMessage is the application-facing chat message shown to end users.
// At most one DeliveryRecord tracks its external delivery; the link is a weak
// back-reference in both directions, never a cascade.
type ThreadMessage struct {
	ID                int64          `json:"id"`
	ConversationID    int64          `json:"conversationId"`
	AuthorID          *int64         `json:"authorId,omitempty"`
	AuthorName        string         `json:"authorName,omitempty"`
	Body              string         `json:"body"`
	Direction         Direction      `json:"direction"`
	ExternalChannel   bool           `json:"externalChannel"`
	DeliveryStatus    DeliveryStatus `json:"deliveryStatus"`
	ExternalMessageID *string        `json:"externalMessageId,omitempty"`
	CounterpartyPhone *string        `json:"counterpartyPhone,omitempty"`
	ErrorMessage      *string        `json:"errorMessage,omitempty"`
	DeliveryRecordID  *int64         `json:"deliveryRecordId,omitempty"`
	Attachments       []Attachment   `json:"attachments,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Attachment is an opaque reference into the blob store. The core only needs
// an id, a display name, a mime type, and a stable URL.
type Attachment struct {
	ID       int64  `json:"id"`
	FileName string `json:"filename"`
	MimeType string `json:"mimetype"`
	URL      string `json:"url"`
}
