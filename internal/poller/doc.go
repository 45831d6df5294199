// Package poller keeps a client session in step with the server's change
// feed.
//
// A Poller ticks on a fixed interval. Each tick starts at most one feed
// request: if the previous one is still outstanding the tick is dropped,
// never queued. A successful page is dispatched in ascending id order and
// the cursor moves to the highest id seen. A failed page leaves the cursor
// where it was so the next tick retries the same window.
//
// Session state (cursor, in-flight flag) lives in a SyncState created by
// Start and discarded by Stop, so a new session always begins from a fresh
// cursor.
//
//	STOPPED --Start--> IDLE --tick--> POLLING --done--> IDLE
//	   ^                |                |
//	   +------Stop------+-------Stop-----+
package poller
