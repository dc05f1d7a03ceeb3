// Package tenancy holds the organization model, the tenant boundary for all
// stored data. Every repository call elsewhere takes an explicit organization
// id; there is no ambient "current organization".
package tenancy

import (
	"errors"
	"time"
)

// Organization is the root of all scoped data.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the organization does not exist.
	ErrNotFound = errors.New("tenancy: organization not found")
	// ErrSlugTaken indicates the slug is already in use.
	ErrSlugTaken = errors.New("tenancy: slug already taken")
)
