// Package notifier delivers operator alerts to the admin chat.
//
// Alerts are raised when an entry is blocked (duplicate, validation, rate
// limit) or its send fails. Delivery is asynchronous: a bounded queue feeds
// a small worker pool that shares a token-bucket limiter and retries with
// jittered exponential backoff.
//
// # Dedup
//
// The same alert (entry, stage and text) is suppressed for DedupWindow, so an
// every-minute entry stuck on a block does not flood the admin chat. With
// PersistDedup the suppression survives restarts through storage.Store.
package notifier
