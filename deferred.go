package datarouter

import (
	"github.com/vango-dev/datarouter/pkg/deferred"
)

// track follows the pending keys of d, stored as routeID's loader data.
// Each settlement publishes a new snapshot. A rejection becomes the
// route's error unless the route renders that key's error itself.
func (r *Router) track(routeID string, d *deferred.Data) {
	d.OnSettle(func(key string, v *deferred.Value) {
		r.deferredSettled(routeID, d, key, v)
	})
}

func (r *Router) deferredSettled(routeID string, d *deferred.Data, key string, v *deferred.Value) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	if cur, ok := r.state.LoaderData[routeID].(*deferred.Data); !ok || cur != d {
		r.mu.Unlock()
		return
	}

	next := r.state
	a := applied{}
	_, err := v.Result()
	if v.State() == deferred.Rejected && !r.handlesDeferred(routeID, key) {
		errs := make(map[string]error, len(next.Errors)+1)
		for id, e := range next.Errors {
			errs[id] = e
		}
		errs[routeID] = err
		a.unhandled = setErrors(&next, newMapBuilder(next.LoaderData), errs)
		a.cancel = staleDeferreds(r.state.LoaderData, next.LoaderData)
	}
	a.state = next
	snap := r.commit(next)
	r.mu.Unlock()
	r.publish(snap, a)
}

func (r *Router) handlesDeferred(routeID, key string) bool {
	route, ok := r.manifest.Route(routeID)
	return ok && route.HandlesDeferred(key)
}
