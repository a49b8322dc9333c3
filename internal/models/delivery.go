package models

import "time"

type DeliveryState string

const (
	DeliveryStateOutgoing  DeliveryState = "outgoing"
	DeliveryStateSent      DeliveryState = "sent"
	DeliveryStateDelivered DeliveryState = "delivered"
	DeliveryStateRead      DeliveryState = "read"
	DeliveryStateError     DeliveryState = "error"
)

type FailureType string

const (
	FailureNoAccount     FailureType = "NO_ACCOUNT"
	FailureSendError     FailureType = "SEND_ERROR"
	FailureAPIError      FailureType = "API_ERROR"
	FailureTemplateError FailureType = "TEMPLATE_ERROR"
)

// DeliveryRecord is the provider-facing tracking entity for one message's
// external delivery lifecycle. Records are never deleted; they are the audit
// trail for every send attempt.
type DeliveryRecord struct {
	ID                int64               `json:"id"`
	PhoneRaw          string              `json:"phoneRaw"`
	PhoneNormalized   string              `json:"phoneNormalized"`
	Direction         Direction           `json:"direction"`
	State             DeliveryState       `json:"state"`
	AccountID         int64               `json:"accountId"`
	ThreadMessageID   int64               `json:"threadMessageId"`
	TemplateID        *int64              `json:"templateId,omitempty"`
	TemplateLangCode  *string             `json:"templateLangCode,omitempty"`
	BodyText          string              `json:"bodyText"`
	ProviderMessageID *string             `json:"providerMessageId,omitempty"`
	FailureType       *FailureType        `json:"failureType,omitempty"`
	ErrorMessage      *string             `json:"errorMessage,omitempty"`
	RetryCount        int                 `json:"retryCount"`
	LastRetryAt       *time.Time          `json:"lastRetryAt,omitempty"`
	Components        []TemplateComponent `json:"components,omitempty"`
	Attachments       []Attachment        `json:"attachments,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

type ComponentType string

const (
	ComponentHeader ComponentType = "header"
	ComponentBody   ComponentType = "body"
	ComponentFooter ComponentType = "footer"
	ComponentButton ComponentType = "button"
)

// TemplateComponent holds the variable values filled into one component of a
// template-mode send. Created once at send time, immutable afterward.
type TemplateComponent struct {
	ID               int64         `json:"id"`
	DeliveryRecordID int64         `json:"deliveryRecordId"`
	Type             ComponentType `json:"type"`
	Variables        []string      `json:"variables"`
}

// CanTransition reports whether a delivery record may move from its current
// state to the target state. The lifecycle is monotonic forward; error is
// reachable from any non-terminal state and retry moves error back to
// outgoing. Reapplying the current state is always allowed (idempotence).
func (s DeliveryState) CanTransition(target DeliveryState) bool {
	if s == target {
		return true
	}
	switch s {
	case DeliveryStateOutgoing:
		return target == DeliveryStateSent || target == DeliveryStateError
	case DeliveryStateSent:
		return target == DeliveryStateDelivered || target == DeliveryStateError
	case DeliveryStateDelivered:
		return target == DeliveryStateRead || target == DeliveryStateError
	case DeliveryStateRead:
		return false
	case DeliveryStateError:
		return target == DeliveryStateOutgoing
	}
	return false
}

// ThreadStatus maps a delivery state onto the thread-message status shown to
// users: sent/delivered/read pass through, error becomes failed.
func (s DeliveryState) ThreadStatus() (DeliveryStatus, bool) {
	switch s {
	case DeliveryStateSent:
		return DeliveryStatusSent, true
	case DeliveryStateDelivered:
		return DeliveryStatusDelivered, true
	case DeliveryStateRead:
		return DeliveryStatusRead, true
	case DeliveryStateError:
		return DeliveryStatusFailed, true
	}
	return "", false
}
