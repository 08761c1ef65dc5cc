// Package deferred tracks loader results that arrive after navigation
// completes.
//
// A Value is tri-state: Pending, then Resolved or Rejected exactly once.
// A Data groups eager fields with pending values so the router can render
// what it has and publish again as each value settles.
package deferred
