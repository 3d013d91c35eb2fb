package jobs

import (
	"sync"
	"time"
)

type followupKey struct {
	uid          string
	medicationID string
}

// FollowupScheduler tracks one pending follow-up reminder per
// (user, medication) pair. Scheduling over an existing entry replaces
// it; cancelling removes the timer before it can fire. The map entry
// is cleared atomically with the timer either firing or being
// cancelled, so a cancelled task never runs.
type FollowupScheduler struct {
	mu      sync.Mutex
	pending map[followupKey]*time.Timer
}

func NewFollowupScheduler() *FollowupScheduler {
	return &FollowupScheduler{
		pending: make(map[followupKey]*time.Timer),
	}
}

func (f *FollowupScheduler) Schedule(uid string, medicationID string, delay time.Duration, fn func()) {
	key := followupKey{uid: uid, medicationID: medicationID}

	f.mu.Lock()
	defer f.mu.Unlock()

	if timer, ok := f.pending[key]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		f.mu.Lock()
		live := f.pending[key] == timer
		if live {
			delete(f.pending, key)
		}
		f.mu.Unlock()

		// Lost the race with Cancel or a replacement; the state
		// change wins.
		if !live {
			return
		}
		fn()
	})
	f.pending[key] = timer
}

// Cancel removes a pending follow-up, reporting whether one existed.
func (f *FollowupScheduler) Cancel(uid string, medicationID string) bool {
	key := followupKey{uid: uid, medicationID: medicationID}

	f.mu.Lock()
	defer f.mu.Unlock()

	timer, ok := f.pending[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(f.pending, key)
	return true
}

// Pending reports the number of scheduled follow-ups.
func (f *FollowupScheduler) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Shutdown stops every pending timer.
func (f *FollowupScheduler) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, timer := range f.pending {
		timer.Stop()
		delete(f.pending, key)
	}
}
