package deferred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrCanceled rejects values that were cancelled before they settled.
var ErrCanceled = errors.New("deferred value canceled")

// State is the settlement state of a Value.
type State uint8

const (
	Pending State = iota
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Value is a result that arrives later. It settles exactly once, either
// resolved with a value or rejected with an error; later settlements are
// ignored.
type Value struct {
	mu      sync.Mutex
	state   State
	value   any
	err     error
	done    chan struct{}
	cancel  context.CancelFunc
	waiters []func(*Value)
}

// NewValue returns a pending Value settled by Resolve or Reject.
func NewValue() *Value {
	return &Value{done: make(chan struct{})}
}

// Go runs fn in a goroutine and settles the Value with its result. The
// context passed to fn is cancelled by Cancel. A panic in fn rejects the
// value.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Value {
	v := NewValue()
	runCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					v.Reject(err)
					return
				}
				v.Reject(fmt.Errorf("deferred: panic: %v", r))
			}
		}()

		val, err := fn(runCtx)
		if err != nil {
			v.Reject(err)
			return
		}
		v.Resolve(val)
	}()
	return v
}

// ResolvedValue returns a Value that is already resolved.
func ResolvedValue(val any) *Value {
	v := NewValue()
	v.Resolve(val)
	return v
}

// Resolve settles v with val. It reports whether this call settled v.
func (v *Value) Resolve(val any) bool {
	return v.settle(Resolved, val, nil)
}

// Reject settles v with err. A nil err is replaced by ErrCanceled.
func (v *Value) Reject(err error) bool {
	if err == nil {
		err = ErrCanceled
	}
	return v.settle(Rejected, nil, err)
}

func (v *Value) settle(state State, val any, err error) bool {
	v.mu.Lock()
	if v.state != Pending {
		v.mu.Unlock()
		return false
	}
	v.state = state
	v.value = val
	v.err = err
	waiters := v.waiters
	v.waiters = nil
	close(v.done)
	v.mu.Unlock()

	for _, fn := range waiters {
		fn(v)
	}
	return true
}

// Cancel rejects a pending value with ErrCanceled and cancels the context
// of the goroutine started by Go.
func (v *Value) Cancel() {
	v.Reject(ErrCanceled)
	if v.cancel != nil {
		v.cancel()
	}
}

// State returns the current state.
func (v *Value) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Result returns the settled value or error. Both are zero while pending.
func (v *Value) Result() (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.err
}

// Done is closed once v settles.
func (v *Value) Done() <-chan struct{} { return v.done }

// Wait blocks until v settles or ctx is done.
func (v *Value) Wait(ctx context.Context) (any, error) {
	select {
	case <-v.done:
		return v.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// onSettle calls fn once v settles, immediately if it already has.
func (v *Value) onSettle(fn func(*Value)) {
	v.mu.Lock()
	if v.state == Pending {
		v.waiters = append(v.waiters, fn)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	fn(v)
}

type valueJSON struct {
	State string `json:"state"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// MarshalJSON encodes the value with its state.
func (v *Value) MarshalJSON() ([]byte, error) {
	v.mu.Lock()
	out := valueJSON{State: v.state.String(), Value: v.value}
	if v.err != nil {
		out.Error = v.err.Error()
	}
	v.mu.Unlock()
	return json.Marshal(out)
}
