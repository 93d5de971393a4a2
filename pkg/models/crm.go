package models

import "time"

// LeadStage tracks a contact through the sales pipeline.
type LeadStage string

const (
	LeadStageNew         LeadStage = "new"
	LeadStageContacted   LeadStage = "contacted"
	LeadStageQualified   LeadStage = "qualified"
	LeadStageProposal    LeadStage = "proposal"
	LeadStageNegotiation LeadStage = "negotiation"
	LeadStageClosedWon   LeadStage = "closed_won"
	LeadStageClosedLost  LeadStage = "closed_lost"
)

// Contact is a CRM contact scoped to a subaccount. Workflow actions read and
// mutate contacts (add_tag) and trigger payloads reference them by ID.
type Contact struct {
	ID           string    `json:"id"`
	SubaccountID string    `json:"subaccount_id" validate:"required"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"         validate:"omitempty,email"`
	Phone        string    `json:"phone"`
	Stage        LeadStage `json:"stage"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasTag reports whether the contact carries the given tag.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// EmailTemplate is a reusable email body referenced by send_email nodes.
// Subject and body are text/template strings rendered against trigger data.
type EmailTemplate struct {
	ID           string    `json:"id"`
	SubaccountID string    `json:"subaccount_id"`
	Name         string    `json:"name"    validate:"required"`
	Subject      string    `json:"subject" validate:"required"`
	Body         string    `json:"body"    validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}

// Task is a to-do created by the create_task action.
type Task struct {
	ID           string     `json:"id"`
	SubaccountID string     `json:"subaccount_id"`
	ContactID    string     `json:"contact_id,omitempty"`
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	Done         bool       `json:"done"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Activity records a notable event in a subaccount (workflow activated,
// execution failed, ...). Activities feed the owner notification email.
type Activity struct {
	ID           string    `json:"id"`
	SubaccountID string    `json:"subaccount_id"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}
