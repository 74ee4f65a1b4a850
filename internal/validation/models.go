// Package validation holds the Stage 1 domain: the inbound request shape, the
// pluggable Validator contract, and the built-in validators.
package validation

import (
	"time"

	"quorumgate/pkg/domain"
)

// Origin carries caller-supplied metadata about where a request came from.
// The core treats it as screening input only; it never reaches storage.
type Origin struct {
	Source  string `json:"source"`
	Address string `json:"address"`
}

// Request is one logical client operation entering Stage 1. Immutable once
// handed to the coordinator.
type Request struct {
	ID        domain.RequestID
	Timestamp time.Time
	Payload   []byte
	Origin    Origin
}

// Outcome is one validator's verdict for one request. Held only for the
// duration of aggregation.
type Outcome struct {
	Validator string  `json:"validator"`
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Detail    string  `json:"detail,omitempty"`
}
