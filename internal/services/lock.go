package services

import (
	"fmt"
	"sync"
)

// keyedMutex serializes check-then-write sequences per mentor or per session
// without blocking unrelated keys. It is the in-process half of the
// concurrency story; database constraints back it up across instances.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entry)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

func mentorKey(mentorID int64) string   { return fmt.Sprintf("mentor:%d", mentorID) }
func sessionKey(sessionID int64) string { return fmt.Sprintf("session:%d", sessionID) }
