package hands

import "sync"

// fakeConn records every snapshot pushed to it. When limit is positive it
// refuses pushes past that many, like a client whose send buffer is full.
type fakeConn struct {
	mu     sync.Mutex
	snaps  []Snapshot
	limit  int
	closed int
}

func (c *fakeConn) Push(s Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && len(c.snaps) >= c.limit {
		return false
	}
	c.snaps = append(c.snaps, s)

	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed++
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.snaps)
}

func (c *fakeConn) last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.snaps) == 0 {
		return nil
	}

	return c.snaps[len(c.snaps)-1]
}
