package database

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockerExcludesOverlappingSets(t *testing.T) {
	l := newKeyLocker()
	unlock := l.Lock([]string{"b", "a", "a"})

	acquired := make(chan struct{})
	go func() {
		u := l.Lock([]string{"c", "a"})
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not handed over after unlock")
	}
}

func TestKeyLockerNoDeadlockOnReversedOrder(t *testing.T) {
	l := newKeyLocker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Lock([]string{"x", "y"})()
		}()
		go func() {
			defer wg.Done()
			l.Lock([]string{"y", "x"})()
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks, "released locks are dropped")
}
