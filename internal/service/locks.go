package service

import (
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Locks serializes mutations per user. One Locks instance guards one store:
// the vault service, the syncer and the sync applier working against the
// same repositories must share it, otherwise a sync pass could read a torn
// credential set while a concurrent update is in flight.
type Locks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*sync.Mutex
}

// NewLocks constructs an empty lock table.
func NewLocks() *Locks {
	return &Locks{m: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the user's mutex and returns the matching unlock.
func (l *Locks) Lock(userID uuid.UUID) (unlock func()) {
	l.mu.Lock()
	m, ok := l.m[userID]
	if !ok {
		m = &sync.Mutex{}
		l.m[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
