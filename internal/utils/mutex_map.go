package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrMutexMapFull = errors.New("max size reached")

type keyedLock struct {
	held chan struct{}
	// Holders plus waiters.
	refs int
}

// MutexMap hands out one lock per key. Entries are dropped once nobody holds
// or waits on them, so maxSize bounds the number of keys in use at once.
type MutexMap[K comparable] struct {
	edit    sync.Mutex
	locks   map[K]*keyedLock
	maxSize int
}

func NewMutexMap[K comparable](maxSize int) *MutexMap[K] {
	return &MutexMap[K]{
		locks:   make(map[K]*keyedLock),
		maxSize: maxSize,
	}
}

// Lock waits for the key until ctx is done, in which case ctx's error is
// returned and the key is not held.
func (m *MutexMap[K]) Lock(ctx context.Context, key K) error {
	m.edit.Lock()
	lock := m.locks[key]
	if lock == nil {
		if len(m.locks) >= m.maxSize {
			m.edit.Unlock()
			return ErrMutexMapFull
		}
		lock = &keyedLock{held: make(chan struct{}, 1)}
		m.locks[key] = lock
	}
	lock.refs++
	m.edit.Unlock()

	select {
	case lock.held <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.edit.Lock()
		m.dropRefLocked(key, lock)
		m.edit.Unlock()
		return ctx.Err()
	}
}

func (m *MutexMap[K]) Unlock(key K) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	lock := m.locks[key]
	if lock == nil {
		return fmt.Errorf("key %v not found", key)
	}

	select {
	case <-lock.held:
	default:
		return fmt.Errorf("key %v is not locked", key)
	}

	m.dropRefLocked(key, lock)
	return nil
}

func (m *MutexMap[K]) dropRefLocked(key K, lock *keyedLock) {
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, key)
	}
}

// Len is the number of keys currently held or waited on.
func (m *MutexMap[K]) Len() int {
	m.edit.Lock()
	defer m.edit.Unlock()
	return len(m.locks)
}
