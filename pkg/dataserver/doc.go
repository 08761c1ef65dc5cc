// Package dataserver serves a route tree over HTTP.
//
// Endpoints, all below the configured mount point:
//
//	GET|POST|PUT|PATCH|DELETE /_data/*   run Query for the URL after /_data
//	GET|POST|...  /_route/{routeID}/*    run a single route's handler
//	GET|POST|...  /_resource/*           run the deepest match's handler
//	GET           /_hydrate/*            signed hydration string (when a Signer is set)
//	GET           /_routes               ranked route branches
//	GET           /_live                 websocket live navigation session
//	GET           /_health               liveness
//
// Data responses carry hydration state encoded with the codec the Accept
// header selects (JSON by default, MessagePack on request) and the status
// Query computed. Redirects are answered with 204 and the target in
// X-Datarouter-Redirect, so clients can follow them inside the router.
//
// A live session owns one datarouter.Router. The client sends JSON
// commands (navigate, go, fetch, deleteFetcher, revalidate) and receives
// a state message after every change, including deferred data settling:
//
//	→ {"type":"navigate","id":"1","to":"/posts/7"}
//	← {"type":"state","state":{...},"matches":["root","post"]}
//	← {"type":"done","id":"1"}
package dataserver
