// Package model defines domain entities for the application.
package model

import (
	"encoding/json"
	"time"
)

// User is the locally cached copy of an identity-provider account.
// ExternalID is the provider's subject identifier and never changes once set.
type User struct {
	ExternalID string          `json:"clerkId"`
	Email      *string         `json:"email,omitempty"`
	FirstName  *string         `json:"firstName,omitempty"`
	LastName   *string         `json:"lastName,omitempty"`
	Raw        json.RawMessage `json:"-"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// UserProfile carries the optional profile fields written on sync or lazy creation.
type UserProfile struct {
	Email     *string
	FirstName *string
	LastName  *string
	Raw       json.RawMessage
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	SubjectID string
	User      *User
}
