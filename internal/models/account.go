package models

import "time"

// Account holds one set of provider credentials. Routing always uses the
// first active account by creation order; there is no load balancing.
type Account struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	BaseURL     string    `json:"baseUrl"`
	AccessToken string    `json:"-"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TemplateStatus string

const (
	TemplateStatusApproved TemplateStatus = "approved"
	TemplateStatusPending  TemplateStatus = "pending"
	TemplateStatusRejected TemplateStatus = "rejected"
)

// Template is a pre-approved structured message, required for sends outside
// the 24-hour session window.
type Template struct {
	ID        int64          `json:"id"`
	AccountID int64          `json:"accountId"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	Status    TemplateStatus `json:"status"`
	LangCode  string         `json:"langCode"`
	CreatedAt time.Time      `json:"createdAt"`
}
