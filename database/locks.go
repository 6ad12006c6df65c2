package database

import (
	"sort"
	"sync"
)

// keyLocker hands out mutexes per storage id. Locking a set of ids always
// acquires them in sorted order, so overlapping sets cannot deadlock.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until every id is held and returns the matching unlock.
func (l *keyLocker) Lock(ids []string) (unlock func()) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	uniq := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			uniq = append(uniq, id)
		}
	}

	held := make([]*keyLock, 0, len(uniq))
	for _, id := range uniq {
		kl := l.acquire(id)
		kl.mu.Lock()
		held = append(held, kl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(uniq[i])
		}
	}
}

func (l *keyLocker) acquire(id string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyLock{}
		l.locks[id] = kl
	}
	kl.refs++
	return kl
}

func (l *keyLocker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[id]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, id)
	}
}
