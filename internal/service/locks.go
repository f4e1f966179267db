package service

import "sync"

// SubmissionLocks serialises workflow mutations per submission. All services
// that move a submission through the state machine must share one instance so
// concurrent requests against the same submission cannot interleave.
type SubmissionLocks struct {
	mu    sync.Mutex
	locks map[string]*submissionLock
}

type submissionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSubmissionLocks constructs an empty lock table.
func NewSubmissionLocks() *SubmissionLocks {
	return &SubmissionLocks{locks: make(map[string]*submissionLock)}
}

// Lock acquires the mutex for a submission and returns its unlock function.
// Entries are reference counted and leave the table once the last holder
// releases, so the table only holds submissions with requests in flight.
func (l *SubmissionLocks) Lock(submissionID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[submissionID]
	if !ok {
		entry = &submissionLock{}
		l.locks[submissionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, submissionID)
		}
		l.mu.Unlock()
	}
}
