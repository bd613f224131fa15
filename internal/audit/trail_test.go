package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]ProbeEvent
	err     error
}

func (m *memStorage) WriteEvents(_ context.Context, events []ProbeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]ProbeEvent(nil), events...)
	m.batches = append(m.batches, cp)
	return m.err
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestTrail_StopFlushesEverything(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, 1000, nil, zap.NewNop())
	trail.Start()

	for i := 0; i < 250; i++ {
		trail.Record(ProbeEvent{ID: fmt.Sprint(i), Step: "load", Status: StatusOK})
	}
	trail.Stop()

	assert.Equal(t, 250, store.total())
	for _, b := range store.batches {
		assert.LessOrEqual(t, len(b), batchSize)
	}
	assert.False(t, store.batches[0][0].Timestamp.IsZero())
}

func TestTrail_TickerFlush(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, 10, nil, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	trail.Record(ProbeEvent{ID: "1", Step: "repo", Status: StatusAbsent})

	require.Eventually(t, func() bool { return store.total() == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestTrail_RecordAfterStopIsDropped(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, 10, nil, zap.NewNop())
	trail.Start()
	trail.Stop()
	trail.Stop()

	trail.Record(ProbeEvent{ID: "late"})
	assert.Zero(t, store.total())
}

func TestTrail_OverflowDoesNotBlock(t *testing.T) {
	store := &memStorage{}
	// воркер не запущен: буфер на 2 события
	trail := NewTrail(store, 2, nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			trail.Record(ProbeEvent{ID: fmt.Sprint(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	assert.Len(t, trail.ch, 2)
}

func TestTrail_StorageErrorIsLogged(t *testing.T) {
	store := &memStorage{err: errors.New("db down")}
	var fills []int
	var mu sync.Mutex
	trail := NewTrail(store, 10, func(n int) {
		mu.Lock()
		fills = append(fills, n)
		mu.Unlock()
	}, zap.NewNop())
	trail.Start()

	trail.Record(ProbeEvent{ID: "1"})
	trail.Stop()

	assert.Equal(t, 1, store.total())
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, fills)
}

func TestTrail_StopDuringConcurrentRecords(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := &memStorage{}
		trail := NewTrail(store, 64, nil, zap.NewNop())
		trail.Start()

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 200; i++ {
					trail.Record(ProbeEvent{ID: fmt.Sprint(i), Step: "browser", Status: StatusOK})
				}
			}()
		}

		close(start)
		trail.Stop()
		wg.Wait()

		assert.LessOrEqual(t, store.total(), 8*200)
	}
}
