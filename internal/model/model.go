// Package model contains domain entities and DTOs used across layers.
// I keep it lean and focused on data shapes without behavior.
package model

import "time"

// Status is the lifecycle state of a resource.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Terminal reports whether no further update or delete is allowed.
// Deleted is a soft delete: the row stays in the store.
func (s Status) Terminal() bool {
	return s == StatusArchived || s == StatusDeleted
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	default:
		return false
	}
}

// Resource is the record every store adapter persists.
type Resource struct {
	ID         string            `json:"id" db:"id"`
	Name       string            `json:"name" db:"name"`
	Kind       string            `json:"kind" db:"kind"`
	Status     Status            `json:"status" db:"status"`
	Attributes map[string]string `json:"attributes,omitempty" db:"attributes"`
	Version    int64             `json:"version" db:"version"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}
