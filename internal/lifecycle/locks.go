// locks.go - per-document serialization
package lifecycle

import "sync"

// keyedMutex serializes state-mutating operations per document id so a
// hold cannot be created mid-archive or two transitions race on the same
// row. Locks are never evicted; the per-document footprint is one mutex.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (km *keyedMutex) Lock(key string) func() {
	km.mu.Lock()
	lock, ok := km.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		km.locks[key] = lock
	}
	km.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// docLocks is the process-wide lock table. Transitions and the legal hold
// registry serialize on the same lock so a hold cannot land between a
// transition's guard check and its status swap.
var docLocks = newKeyedMutex()

// LockDocument acquires the per-document lock shared by every
// state-mutating subsystem. The returned func releases it. Callers must
// not invoke another locking operation for the same document while
// holding it.
func LockDocument(documentID string) func() {
	return docLocks.Lock(documentID)
}
