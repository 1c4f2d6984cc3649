// Package runtime owns the in-memory state of every open conversation. A
// Manager maps conversation ids to Runtime values and serializes all
// mutation behind one lock: stream events fold in through
// ApplyIncomingEvent, user actions (submit, stop, rollback) go through the
// Backend collaborator, and a Notifier fans out coarse change signals so
// consumers re-render from copied Views.
//
// Messages and events are append-only (events in a bounded ring); execution
// updates go through the merge in the execution package so stale reports
// never regress state. The ring keeps events in arrival order; the trace
// layer reorders each execution's steps by producer sequence when it
// renders them. Mutating an unknown conversation id is a no-op, which makes late
// stream callbacks after teardown harmless.
//
// An elapsed-time ticker per conversation publishes tick changes while at
// least one execution is active and stops as soon as none are.
package runtime
