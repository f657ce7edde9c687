package lane

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneSerializesSubmissionOrder(t *testing.T) {
	l := New(8)
	defer l.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Run(context.Background(), func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}))
		}()
	}
	wg.Wait()

	assert.Len(t, order, 20)
}

func TestLaneRunIsSerialNotConcurrent(t *testing.T) {
	l := New(0)
	defer l.Close()

	var active int
	var maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Run(context.Background(), func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestLaneSubmitCompletionDispatchedOnQueue(t *testing.T) {
	work := New(4)
	defer work.Close()
	completions := New(4)
	defer completions.Close()

	done := make(chan struct{})
	var ran bool
	work.Submit(func() { ran = true }, func() { close(done) }, completions)

	<-done
	assert.True(t, ran)
}

func TestLaneClosedRejectsRun(t *testing.T) {
	l := New(1)
	l.Close()
	err := l.Run(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLaneSubmitAfterCloseStillInvokesCompletion(t *testing.T) {
	l := New(1)
	l.Close()

	done := make(chan struct{})
	l.Submit(func() { t.Fatal("fn must not run after close") }, func() { close(done) }, nil)
	<-done
}
