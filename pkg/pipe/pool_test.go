package pipe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesEveryJobBeforeExit(t *testing.T) {
	q := NewQueue(4, nil)

	var processed atomic.Int32
	seen := make(map[int]bool)
	var mu sync.Mutex

	p := NewPool(q, 3, func(workerID int, job Job) {
		processed.Add(1)
		mu.Lock()
		seen[workerID] = true
		mu.Unlock()
	}, nil)
	p.Start()
	p.Start()
	assert.Equal(t, 3, p.Size())

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Push(context.Background(), testJob(1, byte(i))))
	}
	q.Close()
	p.Wait()

	assert.Equal(t, int32(50), processed.Load())
	mu.Lock()
	for id := range seen {
		assert.GreaterOrEqual(t, id, 0)
		assert.Less(t, id, 3)
	}
	mu.Unlock()
}

func TestPoolRecoversPanics(t *testing.T) {
	q := NewQueue(4, nil)

	var panics, processed atomic.Int32
	p := NewPool(q, 1, func(_ int, job Job) {
		if job.Data[0] == 0 {
			panic("bad job")
		}
		processed.Add(1)
	}, func(_ int, _ Job, err error) {
		assert.ErrorIs(t, err, ErrWorkerPanic)
		panics.Add(1)
	})
	p.Start()

	require.NoError(t, q.Push(context.Background(), testJob(1, 0)))
	require.NoError(t, q.Push(context.Background(), testJob(1, 1)))
	q.Close()
	p.Wait()

	assert.Equal(t, int32(1), panics.Load())
	assert.Equal(t, int32(1), processed.Load())
}

func TestPoolDefaultSize(t *testing.T) {
	p := NewPool(NewQueue(1, nil), 0, func(int, Job) {}, nil)
	assert.Equal(t, DefaultWorkers, p.Size())
}
