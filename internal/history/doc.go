/*
Package history persists the console's normalized event stream and rollback
snapshots in a local SQLite database.

The ledger is an append-only record: every event the runtime accepts is
written once, keyed by its dedup identity, so restarting the console (or
resuming a stream from an older cursor) can replay safely without creating
duplicate rows. Snapshots are stored as whole JSON documents keyed by
snapshot id.

# Usage

	ledger, err := history.NewLedger("console-history.db")
	if err != nil {
		return err
	}
	defer ledger.Close()

	events, err := ledger.Events("conv-1", 0)

Ledger satisfies the runtime's Recorder interface, so wiring it into a
runtime.Manager tees every accepted event and captured snapshot to disk.
*/
package history
