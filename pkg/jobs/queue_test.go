package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 2)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 4})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "notify"}))
	require.NoError(t, q.Enqueue(Job{ID: "j2", Type: "notify"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, seen["j1"])
	require.True(t, seen["j2"])
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	release := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-release
		mu.Lock()
		handled = append(handled, job.ID)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})

	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "j1"}))
	require.NoError(t, q.Enqueue(Job{ID: "j2"}))
	require.NoError(t, q.Enqueue(Job{ID: "j3"}))

	close(release)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"j1", "j2", "j3"}, handled)
}

func TestQueueEnqueueAfterStopFails(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil },
		QueueConfig{Workers: 1})
	q.Start(context.Background())
	q.Stop()

	require.Error(t, q.Enqueue(Job{ID: "late"}))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	succeeded := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return errors.New("transient")
		}
		close(succeeded)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))

	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded after retries")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, attempts)
}
