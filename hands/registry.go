/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	CloseReasonExplicit = "closed"
	CloseReasonIdle     = "idle"
)

// Registry maps guest and admin addresses to live sessions.
type Registry struct {
	mu      sync.RWMutex
	byGuest map[uuid.UUID]*Session
	byAdmin map[uuid.UUID]*Session

	now     func() time.Time
	logger  *slog.Logger
	onPush  func(int)
	onClose func(*Session, string)
}

type Option func(*Registry)

// WithClock replaces time.Now, mostly for tests of the idle reaper.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithPushHook is called once for every snapshot handed to an admin
// connection. It runs with a session lock held and must not block.
func WithPushHook(fn func(delivered int)) Option {
	return func(r *Registry) {
		r.onPush = fn
	}
}

// WithCloseHook is called after a session has been removed.
func WithCloseHook(fn func(s *Session, reason string)) Option {
	return func(r *Registry) {
		r.onClose = fn
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byGuest: make(map[uuid.UUID]*Session),
		byAdmin: make(map[uuid.UUID]*Session),
		now:     time.Now,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// CreateSession builds a session with one queue per non-blank entry of
// queueNames and registers it under its guest address.
func (r *Registry) CreateSession(name string, queueNames []string) (*Session, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, fmt.Errorf("session name: %w", err)
	}

	names := make([]string, 0, len(queueNames))
	for _, n := range queueNames {
		if n, err := cleanName(n); err == nil {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoQueues
	}

	s := newSession(name, names, r.now, r.logger)
	s.onPush = r.onPush

	r.mu.Lock()
	defer r.mu.Unlock()

	// uuid collisions are not a practical concern, but the addresses must
	// never be reused while a session is live.
	for r.byGuest[s.guestAddress] != nil || r.byAdmin[s.guestAddress] != nil {
		s.guestAddress = uuid.New()
	}
	for r.byAdmin[s.observer.address] != nil || r.byGuest[s.observer.address] != nil || s.observer.address == s.guestAddress {
		s.observer.address = uuid.New()
	}

	r.byGuest[s.guestAddress] = s
	r.byAdmin[s.observer.address] = s

	r.logger.Info("session created",
		"name", s.name,
		"guest", s.guestAddress,
		"queues", len(names),
	)

	return s, nil
}

// LookupByGuestAddress resolves the session guests join through.
func (r *Registry) LookupByGuestAddress(addr uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byGuest[addr]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s, nil
}

// LookupByAdminAddress resolves the session whose observer lives at addr.
func (r *Registry) LookupByAdminAddress(addr uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byAdmin[addr]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s, nil
}

// RegisterGuest mints an identity for a guest of the session at
// guestAddress.
func (r *Registry) RegisterGuest(guestAddress uuid.UUID, displayName string) (Identity, error) {
	if _, err := r.LookupByGuestAddress(guestAddress); err != nil {
		return Identity{}, err
	}

	return NewIdentity(displayName)
}

// CloseSession removes the session registered at guestAddress and
// disconnects its admins.
func (r *Registry) CloseSession(guestAddress uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.byGuest[guestAddress]
	if ok {
		r.removeLocked(s)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	r.finish(s, CloseReasonExplicit)

	return nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byGuest)
}

// Reap closes every session that has been idle for longer than ttl and
// returns how many were removed. Sessions with a connected admin or guest
// are never idle.
func (r *Registry) Reap(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	var idle []*Session

	r.mu.Lock()
	for _, s := range r.byGuest {
		if s.idleBefore(cutoff) {
			r.removeLocked(s)
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.finish(s, CloseReasonIdle)
	}

	return len(idle)
}

// Run reaps idle sessions every ttl/2 until ctx is done. A non-positive ttl
// disables reaping and Run returns immediately.
func (r *Registry) Run(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(ttl); n > 0 {
				r.logger.Debug("reaped idle sessions", "count", n)
			}
		}
	}
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.byGuest, s.guestAddress)
	delete(r.byAdmin, s.observer.address)
}

func (r *Registry) finish(s *Session, reason string) {
	s.close()

	r.logger.Info("session closed", "name", s.name, "guest", s.guestAddress, "reason", reason)

	if r.onClose != nil {
		r.onClose(s, reason)
	}
}

// SplitQueueNames splits a comma separated list as typed into the create
// form.
func SplitQueueNames(list string) []string {
	parts := strings.Split(list, ",")

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
