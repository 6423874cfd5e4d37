/*
Package registry keeps the authoritative in-process view of live connections.

Key Architectural Concepts:
  - Cells: every user and every room is represented by a 'cell', a set of
    connection IDs. The same connection may sit in one user cell and at most
    one room cell at a time.
  - Single lock: all indexes live behind one RWMutex owned by the Hub, so a
    connection is never observed in a room cell after it left the global set.
  - Snapshot iteration: fan-out copies the member list under the read lock and
    writes to sockets outside of it. A slow consumer never blocks the registry.
*/
package registry

import (
	"github.com/google/uuid"
)

// cell is an unordered member set that remembers insertion order
// so the most recently attached member can be found.
type cell struct {
	members map[uuid.UUID]uint64
	seq     uint64
}

func newCell() *cell {
	return &cell{members: make(map[uuid.UUID]uint64)}
}

func (c *cell) attach(id uuid.UUID) {
	c.seq++
	c.members[id] = c.seq
}

// detach reports whether the cell is now empty.
func (c *cell) detach(id uuid.UUID) bool {
	delete(c.members, id)
	return len(c.members) == 0
}

func (c *cell) size() int { return len(c.members) }

// latest returns the member attached last.
func (c *cell) latest() (uuid.UUID, bool) {
	var (
		best   uuid.UUID
		bestAt uint64
		found  bool
	)
	for id, at := range c.members {
		if !found || at > bestAt {
			best, bestAt, found = id, at, true
		}
	}
	return best, found
}

func (c *cell) ids() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	return out
}
