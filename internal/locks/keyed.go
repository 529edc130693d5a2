// README: Per-key non-blocking advisory lock over mapmutex.
package locks

import "github.com/EagleChen/mapmutex"

// KeyedLock rejects a second holder of the same key immediately instead of waiting.
type KeyedLock[K comparable] struct {
	m *mapmutex.Mutex
}

func NewKeyedLock[K comparable]() *KeyedLock[K] {
	// One attempt, no backoff: callers want fast rejection.
	return &KeyedLock[K]{m: mapmutex.NewCustomizedMapMutex(1, 1, 1, 1, 0)}
}

// TryLock reports whether the key was acquired; the caller must Unlock it.
func (l *KeyedLock[K]) TryLock(key K) bool {
	return l.m.TryLock(key)
}

func (l *KeyedLock[K]) Unlock(key K) {
	l.m.Unlock(key)
}
