package upload

import "sync"

// channelLocks hands out one mutex per channel external id, so the
// metadata-write, rebuild, replace sequence is serialized per channel while
// uploads to different channels proceed independently.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the channel's mutex and returns the unlock function.
func (cl *channelLocks) acquire(externalID string) func() {
	cl.mu.Lock()
	lock, ok := cl.locks[externalID]
	if !ok {
		lock = &sync.Mutex{}
		cl.locks[externalID] = lock
	}
	cl.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
