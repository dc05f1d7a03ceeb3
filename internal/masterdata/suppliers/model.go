package suppliers

import (
	"errors"
	"time"
)

// Supplier represents an organization-scoped supplier entity.
type Supplier struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Code           string    `json:"code,omitempty"`
	Name           string    `json:"name"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the supplier does not exist in the organization.
	ErrNotFound = errors.New("suppliers: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("suppliers: invalid input")
)
