// Package dedupe provides a bounded seen-key set used to suppress duplicate
// protocol events. Streams redeliver events on reconnect and resync, so the
// runtime keys each event (producer event id when present, otherwise a
// deterministic fallback) and consults a KeySet before applying it.
package dedupe
