package deferred

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSettlesOnce(t *testing.T) {
	v := NewValue()
	assert.Equal(t, Pending, v.State())

	val, err := v.Result()
	assert.Nil(t, val)
	assert.NoError(t, err)

	assert.True(t, v.Resolve("first"))
	assert.False(t, v.Resolve("second"))
	assert.False(t, v.Reject(errors.New("late")))

	assert.Equal(t, Resolved, v.State())
	val, err = v.Result()
	assert.Equal(t, "first", val)
	assert.NoError(t, err)

	select {
	case <-v.Done():
	default:
		t.Fatal("Done should be closed after settling")
	}
}

func TestValueReject(t *testing.T) {
	boom := errors.New("boom")
	v := NewValue()
	v.Reject(boom)

	assert.Equal(t, Rejected, v.State())
	_, err := v.Result()
	assert.ErrorIs(t, err, boom)

	nilErr := NewValue()
	nilErr.Reject(nil)
	_, err = nilErr.Result()
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestGo(t *testing.T) {
	v := Go(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})

	val, err := v.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestGoRecoversPanic(t *testing.T) {
	v := Go(context.Background(), func(ctx context.Context) (any, error) {
		panic("kaboom")
	})

	_, err := v.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, Rejected, v.State())
}

func TestCancelStopsGoroutine(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})

	v := Go(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return "too late", nil
	})

	<-started
	v.Cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("goroutine context was not cancelled")
	}

	_, err := v.Result()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, Rejected, v.State())
}

func TestWaitHonorsContext(t *testing.T) {
	v := NewValue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Pending, v.State())
}

func TestConcurrentSettle(t *testing.T) {
	v := NewValue()
	var wg sync.WaitGroup
	wins := make(chan bool, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins <- v.Resolve(i)
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		value func() *Value
		want  string
	}{
		{"pending", NewValue, `{"state":"pending"}`},
		{"resolved", func() *Value { return ResolvedValue([]int{1, 2}) }, `{"state":"resolved","value":[1,2]}`},
		{"rejected", func() *Value {
			v := NewValue()
			v.Reject(errors.New("nope"))
			return v
		}, `{"state":"rejected","error":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.value())
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}
