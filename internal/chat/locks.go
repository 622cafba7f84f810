package chat

import (
	"sync"

	"github.com/google/uuid"
)

// lockArena serializes answer pipelines per thread. Acquisition never
// blocks: a second question on a busy thread is rejected immediately so
// the client can surface the conflict instead of queueing silently.
type lockArena struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func newLockArena() *lockArena {
	return &lockArena{held: make(map[uuid.UUID]struct{})}
}

// acquire takes the thread's lock, or reports false if already held.
func (a *lockArena) acquire(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.held[id]; busy {
		return false
	}
	a.held[id] = struct{}{}
	return true
}

// release frees the thread's lock. The entry is removed so the arena does
// not grow with the number of threads ever seen.
func (a *lockArena) release(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.held, id)
}
