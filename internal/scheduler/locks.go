package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager provides mutual exclusion over named resources such as
// a shared genome index. Each name gets its own mutex, so tasks holding
// different resources run concurrently while two holders of the same
// resource never do.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-resource mutexes
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *ResourceLockManager) get(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Unlock releases the mutex for name.
func (r *ResourceLockManager) Unlock(name string) {
	r.mu.Lock()
	l, ok := r.locks[name]
	r.mu.Unlock()

	if ok {
		l.Unlock()
	}
}

// TryLockAll acquires every named resource or none of them, creating
// mutexes on first use. Names are taken in sorted order.
func (r *ResourceLockManager) TryLockAll(names []string) bool {
	sorted := sortedCopy(names)
	for i, name := range sorted {
		if !r.get(name).TryLock() {
			for j := i - 1; j >= 0; j-- {
				r.Unlock(sorted[j])
			}
			return false
		}
	}
	return true
}

// UnlockAll releases every named resource in reverse sorted order.
func (r *ResourceLockManager) UnlockAll(names []string) {
	sorted := sortedCopy(names)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

// sortedCopy returns the distinct names in sorted order.
func sortedCopy(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	out := sorted[:0]
	for _, name := range sorted {
		if len(out) == 0 || name != out[len(out)-1] {
			out = append(out, name)
		}
	}
	return out
}
