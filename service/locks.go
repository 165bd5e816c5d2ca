package service

import "sync"

// keyedMutex hands out one mutex per key. The wallet ledger uses it to
// serialize the read-modify-write of a single user's balance; operations on
// different users proceed in parallel. Entries are never evicted: the set of
// keys is bounded by the user population and each entry is a single mutex.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns the
// matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
