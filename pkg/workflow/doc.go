// Package workflow sequences guarded steps into the stop-node, start-node
// and upgrade workflows and runs the single maintenance actions. Every run
// is journaled, counted and published as events.
package workflow
