/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxNameLength caps display names, session names and queue names.
const MaxNameLength = 64

// Identity is a self-asserted guest identity. The name is whatever the guest
// typed into the join form; only the ID is generated server-side.
type Identity struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

// NewIdentity mints an identity with a fresh random ID.
func NewIdentity(name string) (Identity, error) {
	name, err := cleanName(name)
	if err != nil {
		return Identity{}, err
	}

	return Identity{Name: name, ID: uuid.New()}, nil
}

// ParseIdentity decodes the JSON form produced by json.Marshal(Identity).
func ParseIdentity(data []byte) (Identity, error) {
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedIdentity, err)
	}
	if id.ID == uuid.Nil || strings.TrimSpace(id.Name) == "" {
		return Identity{}, ErrMalformedIdentity
	}

	return id, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}

	r := []rune(name)
	if len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}

	return name, nil
}
