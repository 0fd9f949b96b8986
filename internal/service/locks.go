package service

import (
	"context"
	"sync"
)

// threadLocks hands out one lock per thread id and forgets it once no
// request holds or waits for it.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

// threadLock is held while its one-slot channel is full.
type threadLock struct {
	slot chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// lock blocks until the caller owns threadID or ctx is done, and returns the
// release func.
func (l *threadLocks) lock(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{slot: make(chan struct{}, 1)}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(threadID, tl)
		return nil, ctx.Err()
	}

	return func() {
		<-tl.slot
		l.unref(threadID, tl)
	}, nil
}

func (l *threadLocks) unref(threadID string, tl *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, threadID)
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
