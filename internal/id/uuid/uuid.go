// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates UUID-derived identifiers.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// ShortID returns an 8-character random identifier for storage keys. Key
// uniqueness does not rest on it alone; keys also carry a timestamp and a
// positional index.
func (Generator) ShortID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:8]
}
