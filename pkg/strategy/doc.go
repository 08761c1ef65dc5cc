// Package strategy runs route loaders and actions for one navigation.
//
// Execute plans which loaders run (new routes, changed route instances,
// and pure revalidations that ShouldRevalidate allows), runs a
// submission's action first, then dispatches every loader concurrently
// and collects one Outcome per route. The first redirect wins and the
// remaining results are dropped.
package strategy
