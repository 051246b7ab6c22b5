// Package matters is the firm's matter register, exposed as a permission
// guarded API.
package matters

import (
	"errors"
	"time"
)

// Status values of a matter.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// ErrNotFound indicates that the matter does not exist.
var ErrNotFound = errors.New("matters: not found")

// ErrDuplicateReference is returned when the reference is already taken.
var ErrDuplicateReference = errors.New("matters: reference already exists")

// Matter is a client engagement.
type Matter struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"reference"`
	Title      string    `json:"title"`
	ClientName string    `json:"clientName"`
	Status     string    `json:"status"`
	OpenedBy   int64     `json:"openedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewMatter is the payload for opening a matter.
type NewMatter struct {
	Reference  string `json:"reference" validate:"required,max=32,printascii"`
	Title      string `json:"title" validate:"required,max=200"`
	ClientName string `json:"clientName" validate:"required,max=200"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status string
	Limit  int
}
