package categories

import (
	"errors"
	"time"
)

// Category represents an organization-scoped spend category. Categories form
// a tree via ParentID; cycles are rejected on update.
type Category struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	ParentID       *int64    `json:"parent_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the category does not exist in the organization.
	ErrNotFound = errors.New("categories: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("categories: invalid input")
	// ErrCycle indicates the parent assignment would create a cycle.
	ErrCycle = errors.New("categories: parent assignment creates a cycle")
)
