package core

import "github.com/google/uuid"

// NewID returns a random UUID string; the instrument generator uses it
// for instrument IDs. Order and margin-lock IDs are generated with uuid
// directly, and trade and fill IDs are derived from the engine sequence.
func NewID() string {
	return uuid.NewString()
}
