package models

import "time"

// Conversation aggregates thread messages exchanged with one counterparty.
type Conversation struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	CounterpartyName  string    `json:"counterpartyName,omitempty"`
	CounterpartyPhone string    `json:"counterpartyPhone"`
	CreatedBy         int64     `json:"createdBy"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ConversationSummary is one row of the conversation list: latest-message
// preview plus per-user unread bookkeeping.
type ConversationSummary struct {
	ID                int64          `json:"id"`
	Phone             string         `json:"phone"`
	CounterpartyName  string         `json:"counterpartyName"`
	LastMessage       string         `json:"lastMessage"`
	LastMessageAt     time.Time      `json:"lastMessageAt"`
	LastMessageStatus DeliveryStatus `json:"lastMessageStatus"`
	Direction         Direction      `json:"direction"`
	UnreadCount       int            `json:"unreadCount"`
}

type ConversationPage struct {
	Items      []ConversationSummary `json:"items"`
	TotalCount int                   `json:"totalCount"`
	Offset     int                   `json:"offset"`
	Limit      int                   `json:"limit"`
}

type MessagePage struct {
	Items      []ThreadMessage `json:"items"`
	TotalCount int             `json:"totalCount"`
	Offset     int             `json:"offset"`
	Limit      int             `json:"limit"`
}
