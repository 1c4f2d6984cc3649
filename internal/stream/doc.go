// Package stream defines the transport contract for live conversation event
// streams and the Attacher that binds at most one stream to each open
// conversation runtime.
//
// Attach is idempotent and a no-op for conversations without a runtime.
// Incoming events fold into the runtime manager, which itself ignores
// unknown conversation ids, so a callback arriving after detach or teardown
// cannot corrupt anything. Status transitions away from connected also
// append a synthetic timeline event so connectivity loss is visible in the
// trace instead of being a silent gap.
package stream
