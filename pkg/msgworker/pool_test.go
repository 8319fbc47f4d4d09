package msgworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SameConversationRunsInOrder(t *testing.T) {
	pool := NewPool(4, 100)
	pool.Start(context.Background())

	var mu sync.Mutex
	var got []int
	for i := 1; i <= 20; i++ {
		val := i
		require.True(t, pool.TryDispatch(Job{
			Channel:        "twilio",
			ConversationID: "+15551234567",
			Handler: func(ctx context.Context) error {
				mu.Lock()
				got = append(got, val)
				mu.Unlock()
				return nil
			},
		}))
	}
	pool.Stop()

	want := make([]int, 20)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, got)
}

func TestPool_StopDrainsQueuedJobs(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	var mu sync.Mutex
	done := 0
	for i := 0; i < 6; i++ {
		pool.Dispatch(Job{
			Channel:        "whatsapp",
			ConversationID: fmt.Sprintf("chat-%d", i),
			Handler: func(ctx context.Context) error {
				mu.Lock()
				done++
				mu.Unlock()
				return nil
			},
		})
	}
	cancel()
	pool.Stop()

	assert.Equal(t, 6, done)
	assert.False(t, pool.TryDispatch(Job{Handler: func(context.Context) error { return nil }}))
	assert.Equal(t, int64(1), pool.Stats().TotalDropped)
}

func TestPool_FullQueueDrops(t *testing.T) {
	pool := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	pool.Start(context.Background())

	pool.Dispatch(Job{ConversationID: "a", Handler: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	assert.True(t, pool.TryDispatch(Job{ConversationID: "a", Handler: func(context.Context) error { return nil }}))
	assert.False(t, pool.TryDispatch(Job{ConversationID: "a", Handler: func(context.Context) error { return nil }}))

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Busy)
	assert.Equal(t, 1, stats.PerWorker[0].QueueDepth)

	close(release)
	pool.Stop()
	assert.Equal(t, int64(2), pool.Stats().TotalProcessed)
}

func TestPool_ErrorsAndPanicsAreCounted(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start(context.Background())

	pool.Dispatch(Job{ConversationID: "x", Handler: func(context.Context) error { return errors.New("boom") }})
	pool.Dispatch(Job{ConversationID: "y", Handler: func(context.Context) error { panic("bad handler") }})
	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, int64(2), stats.TotalProcessed)
}

func TestPool_ShardingIsStableAndSpread(t *testing.T) {
	pool := NewPool(4, 10)
	assert.Equal(t, pool.shardFor("twilio|+1555"), pool.shardFor("twilio|+1555"))

	counts := map[int]int{}
	for i := 0; i < 400; i++ {
		counts[pool.shardFor(fmt.Sprintf("twilio|+1555%04d", i))]++
	}
	for shard, n := range counts {
		assert.Greater(t, n, 50, "shard %d", shard)
	}
}
