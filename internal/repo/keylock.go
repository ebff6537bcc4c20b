package repo

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyLock hands out one lock per key and forgets keys nobody holds or waits on.
type keyLock struct {
	mu    sync.Mutex
	locks map[uint]*keySlot
}

type keySlot struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[uint]*keySlot)}
}

// Lock blocks until key is free or ctx is done and returns the matching unlock func
func (k *keyLock) Lock(ctx context.Context, key uint) (func(), error) {
	k.mu.Lock()
	slot, ok := k.locks[key]
	if !ok {
		slot = &keySlot{sem: semaphore.NewWeighted(1)}
		k.locks[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		k.release(key, slot)
		return nil, err
	}

	return func() {
		slot.sem.Release(1)
		k.release(key, slot)
	}, nil
}

func (k *keyLock) release(key uint, slot *keySlot) {
	k.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
