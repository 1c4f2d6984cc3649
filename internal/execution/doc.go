// Package execution defines the execution data model and the pure logic that
// keeps it consistent under out-of-order delivery.
//
// An Execution is one unit of agent work. Producers may report the same
// execution several times and reports may arrive in any order, so
// NormalizeList collapses duplicates by id with a rank-based merge: in-flight
// states are ranked, the three terminal states share the top rank, and a
// terminal report can never be regressed by a stale in-flight one.
//
// Event is the raw protocol event. FromWirePayload adapts deserialized
// stream payloads into Events, accepting both the legacy execution event
// dialect and the newer run_* dialect, and ApplyEvent advances an
// execution's state for lifecycle events.
package execution
