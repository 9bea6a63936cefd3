package domain

import (
	"sort"
	"sync"
)

// lockRegistry hands out one mutex per lead so updates to different leads
// proceed in parallel while each lead's read-modify-write stays exclusive.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) get(leadID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[leadID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[leadID] = lock
	}
	return lock
}

// lockLeads locks the given lead ids in sorted order to avoid deadlocks when
// a merge needs two leads at once. Duplicate ids are locked once. The
// returned function releases every acquired lock.
func (r *lockRegistry) lockLeads(leadIDs ...string) func() {
	unique := make([]string, 0, len(leadIDs))
	seen := make(map[string]bool, len(leadIDs))
	for _, id := range leadIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	sort.Strings(unique)

	acquired := make([]*sync.Mutex, 0, len(unique))
	for _, id := range unique {
		lock := r.get(id)
		lock.Lock()
		acquired = append(acquired, lock)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
