package journal

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is used when List is called without a positive limit.
	DefaultLimit = 50
	// MaxLimit caps a single List call.
	MaxLimit = 500
)

// Record is one journaled session transition.
type Record struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	Identity   string    `json:"identity,omitempty"`
	Network    string    `json:"network,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
