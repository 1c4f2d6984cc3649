// Package trace turns raw protocol events into display-ready projections:
// redacted payloads, summarized reasoning and tool activity, per-execution
// step lists, and live running-action rows with hydrated elapsed time.
//
// Everything in this package is derived. Normalization and presentation are
// pure functions over the event list and execution set, rebuilt on demand;
// only ExpansionState carries UI state between rebuilds, keyed by execution
// id: collapsed by default, pinned across recompute, and reset only when the
// execution id itself disappears.
//
// Labels are emitted through x/text message catalogs. English strings double
// as catalog keys and a Simplified Chinese catalog is registered at init.
package trace
