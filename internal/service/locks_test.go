package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionLocksSerialisesSameSubmission(t *testing.T) {
	locks := NewSubmissionLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("sub-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestSubmissionLocksDropEntriesWhenReleased(t *testing.T) {
	locks := NewSubmissionLocks()

	unlockA := locks.Lock("sub-a")
	unlockB := locks.Lock("sub-b")
	require.Len(t, locks.locks, 2)

	unlockA()
	require.Len(t, locks.locks, 1)
	unlockB()
	require.Empty(t, locks.locks)
}

func TestSubmissionLocksKeepEntryWhileContended(t *testing.T) {
	locks := NewSubmissionLocks()
	unlock := locks.Lock("sub-1")

	acquired := make(chan struct{})
	go func() {
		second := locks.Lock("sub-1")
		second()
		close(acquired)
	}()

	// The waiting goroutine keeps the entry referenced until it gets through.
	for {
		locks.mu.Lock()
		entry, ok := locks.locks["sub-1"]
		refs := 0
		if ok {
			refs = entry.refs
		}
		locks.mu.Unlock()
		if refs == 2 {
			break
		}
	}

	unlock()
	<-acquired
	require.Empty(t, locks.locks)
}
