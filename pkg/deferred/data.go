package deferred

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Data is loader data with some fields still pending. Eager fields are
// available at once; pending fields are *Value and settle later.
//
// A loader returns a *Data to let navigation finish before slow fields
// arrive:
//
//	return deferred.Defer(map[string]any{
//	    "title":    title,
//	    "comments": deferred.Go(ctx, loadComments),
//	}), nil
type Data struct {
	eager   map[string]any
	pending map[string]*Value
	keys    []string

	mu       sync.Mutex
	notified map[string]bool
	watchers []func(key string, v *Value)
}

// Defer splits fields into eager values and pending *Value fields. fields
// is not retained.
func Defer(fields map[string]any) *Data {
	d := &Data{
		eager:    make(map[string]any, len(fields)),
		pending:  make(map[string]*Value),
		notified: make(map[string]bool),
	}
	for k, f := range fields {
		if v, ok := f.(*Value); ok && v != nil {
			d.pending[k] = v
			d.keys = append(d.keys, k)
			continue
		}
		d.eager[k] = f
	}
	sort.Strings(d.keys)

	for _, k := range d.keys {
		key := k
		d.pending[key].onSettle(func(v *Value) { d.settle(key, v) })
	}
	return d
}

func (d *Data) settle(key string, v *Value) {
	d.mu.Lock()
	d.notified[key] = true
	watchers := append([]func(string, *Value){}, d.watchers...)
	d.mu.Unlock()

	for _, fn := range watchers {
		fn(key, v)
	}
}

// OnSettle registers fn to run once for each pending key as it settles.
// Keys that already settled are reported immediately, in key order.
// fn runs on the settling goroutine.
func (d *Data) OnSettle(fn func(key string, v *Value)) {
	d.mu.Lock()
	d.watchers = append(d.watchers, fn)
	var settled []string
	for _, k := range d.keys {
		if d.notified[k] {
			settled = append(settled, k)
		}
	}
	d.mu.Unlock()

	for _, k := range settled {
		fn(k, d.pending[k])
	}
}

// Eager returns a copy of the eager fields.
func (d *Data) Eager() map[string]any {
	out := make(map[string]any, len(d.eager))
	for k, v := range d.eager {
		out[k] = v
	}
	return out
}

// Keys returns the deferred keys in sorted order.
func (d *Data) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Value returns the deferred value for key.
func (d *Data) Value(key string) (*Value, bool) {
	v, ok := d.pending[key]
	return v, ok
}

// Get returns the eager field or the *Value for key.
func (d *Data) Get(key string) any {
	if v, ok := d.pending[key]; ok {
		return v
	}
	return d.eager[key]
}

// Settled reports whether every pending value has settled.
func (d *Data) Settled() bool {
	for _, v := range d.pending {
		if v.State() == Pending {
			return false
		}
	}
	return true
}

// Wait blocks until every pending value settles or ctx is done.
func (d *Data) Wait(ctx context.Context) error {
	for _, k := range d.keys {
		select {
		case <-d.pending[k].Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Cancel rejects every pending value with ErrCanceled.
func (d *Data) Cancel() {
	for _, k := range d.keys {
		d.pending[k].Cancel()
	}
}

// Unwrap returns the fields with settled values inlined: resolved values
// replace their *Value, rejected ones become their error, pending ones
// stay *Value.
func (d *Data) Unwrap() map[string]any {
	out := d.Eager()
	for k, v := range d.pending {
		switch v.State() {
		case Resolved:
			out[k], _ = v.Result()
		case Rejected:
			_, out[k] = v.Result()
		default:
			out[k] = v
		}
	}
	return out
}

// MarshalJSON encodes eager fields as-is and deferred fields with their
// state.
func (d *Data) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.eager)+len(d.pending))
	for k, v := range d.eager {
		out[k] = v
	}
	for k, v := range d.pending {
		out[k] = v
	}
	return json.Marshal(out)
}
