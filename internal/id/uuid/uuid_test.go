// Package uuid includes tests for the record ID generator.
package uuid

import (
	"regexp"
	"testing"

	goUUID "github.com/google/uuid"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

// TestGeneratorNewID ensures generated IDs are hex encoded random UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if !hexID.MatchString(id) {
		t.Fatalf("expected 32 lowercase hex chars, got %q", id)
	}
	parsed, err := goUUID.Parse(id)
	if err != nil {
		t.Fatalf("id not parseable as UUID: %v", err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected UUID version 4, got %d", parsed.Version())
	}
}

// TestGeneratorNewIDUnique generates many IDs and checks none repeat.
func TestGeneratorNewIDUnique(t *testing.T) {
	t.Parallel()

	const n = 10000
	gen := New()
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := gen.NewID()
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s after %d generations", id, i)
		}
		seen[id] = struct{}{}
	}
}
