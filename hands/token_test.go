package hands

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	codec, err := NewTokenCodec([]byte("secret"), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	session := uuid.New()
	alice := mustIdentity(t, "Alice")

	token, err := codec.Issue(session, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := codec.Verify(token, session)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diff := cmp.Diff(alice, got); diff != "" {
		t.Errorf("identity (-want +got):\n%s", diff)
	}
}

func TestTokenRejected(t *testing.T) {
	codec, err := NewTokenCodec([]byte("secret"), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	other, err := NewTokenCodec([]byte("other"), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	session := uuid.New()
	alice := mustIdentity(t, "Alice")

	token, err := codec.Issue(session, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	forged, err := other.Issue(session, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	expiredCodec, _ := NewTokenCodec([]byte("secret"), time.Minute)
	expiredCodec.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredCodec.Issue(session, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		session uuid.UUID
	}{
		{"other session", token, uuid.New()},
		{"wrong key", forged, session},
		{"garbage", "not.a.token", session},
		{"empty", "", session},
		{"tampered", token + "x", session},
		{"expired", expired, session},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Verify(tt.token, tt.session); !errors.Is(err, ErrMalformedIdentity) {
				t.Errorf("Verify: expected ErrMalformedIdentity, got %v", err)
			}
		})
	}
}

func TestTokenRandomSecret(t *testing.T) {
	a, err := NewTokenCodec(nil, 0)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	b, err := NewTokenCodec(nil, 0)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	session := uuid.New()
	token, err := a.Issue(session, mustIdentity(t, "Alice"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := a.Verify(token, session); err != nil {
		t.Fatalf("Verify with issuing codec: %v", err)
	}
	if _, err := b.Verify(token, session); !errors.Is(err, ErrMalformedIdentity) {
		t.Fatalf("Verify with another random secret: expected ErrMalformedIdentity, got %v", err)
	}
}
