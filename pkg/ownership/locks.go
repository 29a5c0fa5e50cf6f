package ownership

import "sync"

// keyLocks serializes read-verify-write sequences per record. Entries are
// reference counted and dropped once no goroutine holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks { // A
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock blocks until the caller owns id and returns the release func.
func (k *keyLocks) lock(id string) func() { // A
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int { // A
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
