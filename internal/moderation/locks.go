package moderation

import (
	"context"
	"sync"
)

// keyLocks hands out one mutex per user id. Entries are dropped once no
// caller holds or waits on them.
type keyLocks struct {
	mu      sync.Mutex
	entries map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[string]*keyLock)}
}

func (l *keyLocks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyLock{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(key, entry)
		})
	}, nil
}

func (l *keyLocks) release(key string, entry *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
