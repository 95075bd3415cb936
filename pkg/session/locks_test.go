package session

import (
	"context"
	"sync"
	"testing"
)

func TestWithLockSerializesSameSession(t *testing.T) {
	locks := NewLocks()

	const workers = 32
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = locks.WithLock(context.Background(), "s1", func(context.Context) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestWithLockAllowsDistinctSessionsConcurrently(t *testing.T) {
	locks := NewLocks()

	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = locks.WithLock(context.Background(), "s1", func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding

	// A different session must not wait on s1's lock.
	done := make(chan struct{})
	go func() {
		_ = locks.WithLock(context.Background(), "s2", func(context.Context) error {
			return nil
		})
		close(done)
	}()

	<-done
	close(release)
}

func TestLockTableShrinksWhenIdle(t *testing.T) {
	locks := NewLocks()

	_ = locks.WithLock(context.Background(), "s1", func(context.Context) error { return nil })

	locks.mu.Lock()
	size := len(locks.locks)
	locks.mu.Unlock()

	if size != 0 {
		t.Fatalf("lock table size = %d, want 0 after release", size)
	}
}
