// Package uuid provides record ID generation helpers.
package uuid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Generator creates random 128-bit record IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv4 encoded as 32 lowercase hex characters, no dashes.
func (g Generator) NewID() (string, error) {
	id, err := g.NewRawID()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}

// NewRawID returns a UUIDv4.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid4: %w", err)
	}
	return id, nil
}
