// Package snapshot builds and queries immutable point-in-time captures of a
// conversation's state, used to support rollback. A snapshot deep-copies the
// message list and keeps a reduced projection of the executions; the latest
// snapshot taken for a given rollback point wins on lookup.
package snapshot
