package hands

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIdentityJSONRoundTrip(t *testing.T) {
	id := mustIdentity(t, "Alice")

	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"name": "Alice", "id": id.ID.String()}, raw); diff != "" {
		t.Fatalf("wire keys (-want +got):\n%s", diff)
	}

	back, err := ParseIdentity(data)
	if err != nil {
		t.Fatalf("ParseIdentity: %v", err)
	}
	if diff := cmp.Diff(id, back); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestParseIdentityMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "nope"},
		{"bad uuid", `{"name":"Alice","id":"123"}`},
		{"missing id", `{"name":"Alice"}`},
		{"missing name", `{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseIdentity([]byte(tt.input)); !errors.Is(err, ErrMalformedIdentity) {
				t.Errorf("ParseIdentity(%q): expected ErrMalformedIdentity, got %v", tt.input, err)
			}
		})
	}
}

func TestNewIdentityName(t *testing.T) {
	if _, err := NewIdentity("   "); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("blank name: expected ErrInvalidName, got %v", err)
	}

	id := mustIdentity(t, strings.Repeat("x", MaxNameLength+10))
	if got := len([]rune(id.Name)); got != MaxNameLength {
		t.Fatalf("long name: expected %d runes, got %d", MaxNameLength, got)
	}

	a := mustIdentity(t, "Alice")
	b := mustIdentity(t, "Alice")
	if a.ID == b.ID {
		t.Fatalf("two registrations produced the same id")
	}
}
