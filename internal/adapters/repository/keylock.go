package repository

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultLockStripes = 256

// KeyedLocker serializes work per key over a fixed set of mutex stripes.
// Keys that hash to the same stripe share a mutex.
type KeyedLocker struct {
	stripes []sync.Mutex
}

// NewKeyedLocker creates a locker with n stripes. n < 1 uses the default.
func NewKeyedLocker(n int) *KeyedLocker {
	if n < 1 {
		n = defaultLockStripes
	}
	return &KeyedLocker{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (l *KeyedLocker) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
