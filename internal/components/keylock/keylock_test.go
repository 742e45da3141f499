package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	var locks Map
	var wg sync.WaitGroup

	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("trino/476")
			defer unlock()
			current := counter
			counter = current + 1
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Equal(t, 0, locks.Len())
}

func TestLockIndependentKeys(t *testing.T) {
	var locks Map

	unlockA := locks.Lock("trino/476")
	unlockB := locks.Lock("starburst/476-e")
	require.Equal(t, 2, locks.Len())

	unlockA()
	unlockA()
	unlockB()
	require.Equal(t, 0, locks.Len())
}
