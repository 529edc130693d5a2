package locks

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pair struct{ a, b string }

func TestKeyedLockRejectsSecondHolder(t *testing.T) {
	l := NewKeyedLock[pair]()
	k := pair{"d1", "o1"}

	assert.True(t, l.TryLock(k))
	assert.False(t, l.TryLock(k))
	assert.True(t, l.TryLock(pair{"d1", "o2"}), "different key is independent")

	l.Unlock(k)
	assert.True(t, l.TryLock(k))
}

func TestKeyedLockConcurrentAcquire(t *testing.T) {
	l := NewKeyedLock[string]()
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if l.TryLock("o1") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
