/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import "github.com/google/uuid"

// Snapshot is the state of every queue in a session, in creation order.
// Snapshots are never mutated after capture.
type Snapshot []QueueSnapshot

// Conn is one attached connection. Admin connections receive snapshots;
// guest connections are only tracked so they can be closed with the session.
type Conn interface {
	// Push hands a snapshot to the connection without blocking. It returns
	// false if the connection cannot take any more messages.
	Push(Snapshot) bool

	// Close releases the connection. It may be called more than once.
	Close()
}

// Observer is the broadcast scope for all admin connections of one session.
// It lives behind its own address so that admin URLs never leak the guest
// address and vice versa.
type Observer struct {
	address uuid.UUID
	session *Session
	conns   map[Conn]struct{}
}

func newObserver(s *Session) *Observer {
	return &Observer{
		address: uuid.New(),
		session: s,
		conns:   make(map[Conn]struct{}),
	}
}

func (o *Observer) Address() uuid.UUID { return o.address }

// Attach adds c to the broadcast set and immediately sends it the current
// snapshot, so late joiners never start from an empty view.
func (o *Observer) Attach(c Conn) error {
	s := o.session

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionNotFound
	}

	o.conns[c] = struct{}{}
	s.lastActive = s.now()
	o.pushLocked(c, s.snapshotLocked())

	return nil
}

// Detach removes c from the broadcast set. It does not close c.
func (o *Observer) Detach(c Conn) {
	s := o.session

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(o.conns, c)
	s.lastActive = s.now()
}

// Len reports how many admin connections are attached.
func (o *Observer) Len() int {
	s := o.session

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(o.conns)
}

// broadcastLocked sends snap to every attached connection. The caller holds
// the session lock, so every connection sees snapshots in mutation order.
func (o *Observer) broadcastLocked(snap Snapshot) {
	for c := range o.conns {
		o.pushLocked(c, snap)
	}
}

func (o *Observer) pushLocked(c Conn, snap Snapshot) {
	if c.Push(snap) {
		if o.session.onPush != nil {
			o.session.onPush(1)
		}
		return
	}

	delete(o.conns, c)
	c.Close()
}

func (o *Observer) closeAllLocked() {
	for c := range o.conns {
		c.Close()
		delete(o.conns, c)
	}
}
