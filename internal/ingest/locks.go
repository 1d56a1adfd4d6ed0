package ingest

import "sync"

// lockArena hands out one mutex per project so a scheduled tick and a
// manual trigger for the same project serialize instead of racing on
// lastRunAt and usage increments.
type lockArena struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[string]*sync.Mutex)}
}

func (a *lockArena) forProject(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[id] = lock
	}
	return lock
}
