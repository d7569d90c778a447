/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one moderated event: a fixed set of queues, a guest address and
// an admin observer. A single mutex covers queue resolution, mutation,
// snapshot capture and hand-off to the observer.
type Session struct {
	mu sync.Mutex

	name         string
	guestAddress uuid.UUID
	observer     *Observer

	queues    []*Queue
	byChannel map[uuid.UUID]*Queue

	// live guest connections per user id
	guests map[uuid.UUID]*presence

	createdAt  time.Time
	lastActive time.Time
	closed     bool

	now    func() time.Time
	logger *slog.Logger
	onPush func(int)
}

// presence tracks one guest's open connections. generation grows on every
// connect so that a pending auto-lower can tell it has been superseded.
type presence struct {
	conns      map[Conn]struct{}
	generation uint64
}

func newSession(name string, queueNames []string, now func() time.Time, logger *slog.Logger) *Session {
	ts := now()

	s := &Session{
		name:         name,
		guestAddress: uuid.New(),
		byChannel:    make(map[uuid.UUID]*Queue, len(queueNames)),
		guests:       make(map[uuid.UUID]*presence),
		createdAt:    ts,
		lastActive:   ts,
		now:          now,
		logger:       logger,
	}
	s.observer = newObserver(s)

	for _, n := range queueNames {
		q := newQueue(n)
		s.queues = append(s.queues, q)
		s.byChannel[q.channelID] = q
	}

	return s
}

func (s *Session) Name() string { return s.name }

func (s *Session) GuestAddress() uuid.UUID { return s.guestAddress }

func (s *Session) AdminAddress() uuid.UUID { return s.observer.address }

func (s *Session) Observer() *Observer { return s.observer }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Queues lists the queues in creation order. The set of queues and their
// names never change after construction.
func (s *Session) Queues() []QueueInfo {
	out := make([]QueueInfo, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, q.info())
	}

	return out
}

// Raise puts user at the end of the queue identified by channelID. The
// returned bool is false when the queue was frozen or user was already in it.
// Admins are notified either way.
func (s *Session) Raise(user Identity, channelID uuid.UUID) (bool, error) {
	added, err := s.mutate(channelID, func(q *Queue) bool { return q.Add(user) })
	if err == nil {
		s.logger.Debug("raise", "session", s.guestAddress, "queue", channelID, "user", user.Name, "added", added)
	}

	return added, err
}

// Lower takes user out of the queue identified by channelID.
func (s *Session) Lower(user Identity, channelID uuid.UUID) (bool, error) {
	removed, err := s.mutate(channelID, func(q *Queue) bool { return q.Remove(user) })
	if err == nil {
		s.logger.Debug("lower", "session", s.guestAddress, "queue", channelID, "user", user.Name, "removed", removed)
	}

	return removed, err
}

// SetFrozen freezes or reopens one queue.
func (s *Session) SetFrozen(channelID uuid.UUID, frozen bool) error {
	_, err := s.mutate(channelID, func(q *Queue) bool {
		changed := q.frozen != frozen
		q.SetFrozen(frozen)
		return changed
	})
	if err == nil {
		s.logger.Info("queue frozen state changed", "session", s.guestAddress, "queue", channelID, "frozen", frozen)
	}

	return err
}

// LowerAll removes the user with the given id from every queue and returns
// how many queues it was removed from. Admins are only notified on change.
func (s *Session) LowerAll(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	return s.lowerAllLocked(id)
}

func (s *Session) lowerAllLocked(id uuid.UUID) int {
	n := 0
	for _, q := range s.queues {
		if q.removeID(id) {
			n++
		}
	}

	if n > 0 {
		s.lastActive = s.now()
		s.triggerUpdateLocked()
	}

	return n
}

func (s *Session) mutate(channelID uuid.UUID, fn func(*Queue) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSessionNotFound
	}

	q, ok := s.byChannel[channelID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrQueueNotFound, channelID)
	}

	changed := fn(q)

	s.lastActive = s.now()
	s.triggerUpdateLocked()

	return changed, nil
}

// Snapshot captures the current state of every queue.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := make(Snapshot, 0, len(s.queues))
	for _, q := range s.queues {
		snap = append(snap, q.Snapshot())
	}

	return snap
}

func (s *Session) triggerUpdateLocked() {
	s.observer.broadcastLocked(s.snapshotLocked())
}

// GuestConnected records a live guest connection c for id. It fails with
// ErrSessionNotFound once the session is closed.
func (s *Session) GuestConnected(id uuid.UUID, c Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionNotFound
	}

	p := s.guests[id]
	if p == nil {
		p = &presence{conns: make(map[Conn]struct{})}
		s.guests[id] = p
	}
	p.conns[c] = struct{}{}
	p.generation++

	s.lastActive = s.now()

	return nil
}

// GuestDisconnected drops connection c for id. It returns how many
// connections remain and the generation to hand to LowerAway.
func (s *Session) GuestDisconnected(id uuid.UUID, c Conn) (remaining int, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()

	p := s.guests[id]
	if p == nil {
		return 0, 0
	}
	delete(p.conns, c)

	return len(p.conns), p.generation
}

// GuestConnections reports the number of live connections for id.
func (s *Session) GuestConnections(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.guests[id]; p != nil {
		return len(p.conns)
	}

	return 0
}

// LowerAway lowers id from every queue, but only if the guest has not
// connected again since GuestDisconnected returned generation.
func (s *Session) LowerAway(id uuid.UUID, generation uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.guests[id]
	if s.closed || p == nil || len(p.conns) > 0 || p.generation != generation {
		return 0
	}

	return s.lowerAllLocked(id)
}

// idleBefore reports whether nothing has touched the session since cutoff
// and no admin or guest is connected.
func (s *Session) idleBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.observer.conns) > 0 {
		return false
	}
	for _, p := range s.guests {
		if len(p.conns) > 0 {
			return false
		}
	}

	return s.lastActive.Before(cutoff)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.observer.closeAllLocked()

	for id, p := range s.guests {
		for c := range p.conns {
			c.Close()
		}
		delete(s.guests, id)
	}
}
