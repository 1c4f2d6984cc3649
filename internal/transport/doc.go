// Package transport implements the stream transport contract over
// Server-Sent Events. The client resumes with Last-Event-ID, reconnects
// with exponential backoff, and decodes wire payloads through the execution
// package's event adapter, so consumers only ever see adapted events and
// connection status changes.
//
// The package also carries the REST action client (API), which submits,
// cancels, confirms, and rolls back executions against the same server and
// satisfies the runtime's Backend interface.
package transport
