package coordination

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationCoordinatorCoalescesConcurrentCallers(t *testing.T) {
	c := NewGenerationCoordinator(Coalesce)
	key := GenerationKey{ProjectID: "p1", ChapterNumber: 3}

	var calls int32
	release := make(chan struct{})
	fn := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 3)
	shared := make([]bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond) // let the first caller start fn first
			v, err, sh := c.Run(context.Background(), key, fn)
			require.NoError(t, err)
			results[i] = v
			shared[i] = sh
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for i := range results {
		assert.Equal(t, "result", results[i])
	}
}

func TestGenerationCoordinatorQueueSerializesCallers(t *testing.T) {
	c := NewGenerationCoordinator(Queue)
	key := GenerationKey{ProjectID: "p1", ChapterNumber: 1}

	var active int32
	var maxActive int32
	var calls int32
	fn := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err, _ := c.Run(context.Background(), key, fn)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, calls)
	assert.EqualValues(t, 1, maxActive)
}

func TestGenerationCoordinatorDifferentKeysRunConcurrently(t *testing.T) {
	c := NewGenerationCoordinator(Queue)

	start := make(chan struct{})
	var wg sync.WaitGroup
	var arrived sync.WaitGroup
	wg.Add(2)
	arrived.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			key := GenerationKey{ProjectID: "p1", ChapterNumber: i}
			_, _, _ = c.Run(context.Background(), key, func() (any, error) {
				close2(start)
				// Each fn waits until both are inside fn at once, so
				// serialized keys would never finish.
				arrived.Done()
				arrived.Wait()
				return nil, nil
			})
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct generation keys should not serialize against each other")
	}
}

var closeOnce sync.Once

func close2(ch chan struct{}) {
	closeOnce.Do(func() { close(ch) })
}
