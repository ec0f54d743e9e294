package model

import (
	"time"

	"github.com/google/uuid"
)

// Assistant is a minimal record of a Vapi assistant owned by a user. The
// active count backs the derived assistants_created figure on usage checks.
type Assistant struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Name            string    `json:"name" db:"name"`
	VapiAssistantID string    `json:"vapi_assistant_id" db:"vapi_assistant_id"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
