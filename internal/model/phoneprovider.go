package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ProviderName string

const (
	ProviderTwilio ProviderName = "twilio"
	ProviderPlivo  ProviderName = "plivo"
	ProviderNexmo  ProviderName = "nexmo"
)

// PhoneProvider holds a user's own telephony credentials and number. At most
// one active default provider per user; the invariant is enforced by the
// service layer, not the schema.
type PhoneProvider struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	ProviderName ProviderName    `json:"provider_name" db:"provider_name"`
	Credentials  json.RawMessage `json:"-" db:"credentials"` // provider-specific secret bundle, never serialized out
	PhoneNumber  string          `json:"phone_number" db:"phone_number"`
	// VapiPhoneNumberID caches the external id assigned when the number is
	// registered with Vapi; empty until first use.
	VapiPhoneNumberID string    `json:"vapi_phone_number_id" db:"vapi_phone_number_id"`
	IsDefault         bool      `json:"is_default" db:"is_default"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// PhoneNumberRef is the resolved outbound caller identity for a call.
// IsDefault marks the shared platform fallback number, not a user-owned one.
type PhoneNumberRef struct {
	VapiPhoneNumberID string `json:"vapi_phone_number_id"`
	IsDefault         bool   `json:"is_default"`
}
