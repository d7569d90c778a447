/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import (
	"slices"

	"github.com/google/uuid"
)

// QueueSnapshot is the wire form of one queue as pushed to admins.
type QueueSnapshot struct {
	Name        string    `json:"name"`
	CurrentList []string  `json:"current_list"`
	IsFrozen    bool      `json:"is_frozen"`
	ChannelID   uuid.UUID `json:"channel_id"`
}

// QueueInfo is what guests need to render the join buttons.
type QueueInfo struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

// Queue is an ordered list of raised hands. Position encodes raise order.
//
// A Queue is not safe for concurrent use; its owning Session serializes
// access.
type Queue struct {
	name      string
	channelID uuid.UUID
	members   []uuid.UUID
	names     map[uuid.UUID]string
	frozen    bool
}

func newQueue(name string) *Queue {
	return &Queue{
		name:      name,
		channelID: uuid.New(),
		names:     make(map[uuid.UUID]string),
	}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) ChannelID() uuid.UUID { return q.channelID }

func (q *Queue) Frozen() bool { return q.frozen }

func (q *Queue) Len() int { return len(q.members) }

func (q *Queue) Contains(id uuid.UUID) bool {
	_, ok := q.names[id]
	return ok
}

// Add appends user to the end of the queue. It reports false without
// changing anything if the queue is frozen or user is already queued.
func (q *Queue) Add(user Identity) bool {
	if q.frozen || q.Contains(user.ID) {
		return false
	}

	q.members = append(q.members, user.ID)
	q.names[user.ID] = user.Name

	return true
}

// Remove takes user out of the queue. Frozen queues can still be left.
func (q *Queue) Remove(user Identity) bool {
	return q.removeID(user.ID)
}

func (q *Queue) removeID(id uuid.UUID) bool {
	if !q.Contains(id) {
		return false
	}

	q.members = slices.DeleteFunc(q.members, func(m uuid.UUID) bool { return m == id })
	delete(q.names, id)

	return true
}

// SetFrozen blocks (true) or allows (false) new hands.
func (q *Queue) SetFrozen(frozen bool) {
	q.frozen = frozen
}

func (q *Queue) Snapshot() QueueSnapshot {
	list := make([]string, 0, len(q.members))
	for _, id := range q.members {
		list = append(list, q.names[id])
	}

	return QueueSnapshot{
		Name:        q.name,
		CurrentList: list,
		IsFrozen:    q.frozen,
		ChannelID:   q.channelID,
	}
}

func (q *Queue) info() QueueInfo {
	return QueueInfo{Name: q.name, ID: q.channelID}
}
