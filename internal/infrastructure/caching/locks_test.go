package caching

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockTableSerializesSameKey(t *testing.T) {
	table := NewLockTable()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.Lock("sess_1")
			counter++
			table.Unlock("sess_1")
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
	require.Zero(t, table.Size(), "released entries must be dropped")
}

func TestLockTableIndependentKeys(t *testing.T) {
	table := NewLockTable()

	table.Lock("sess_1")
	done := make(chan struct{})
	go func() {
		// A different key must not block behind sess_1.
		table.Lock("sess_2")
		table.Unlock("sess_2")
		close(done)
	}()

	<-done
	table.Unlock("sess_1")
	require.Zero(t, table.Size())
}
