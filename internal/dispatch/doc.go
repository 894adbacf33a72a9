// Package dispatch runs one evaluation pass ("tick") over all entries.
//
// For each entry the eligibility engine decides; the dispatcher then acts:
//   - send: deliver via the transport, write Sent(now), count it, and post
//     a poll when the message carried a URL
//   - transport failure: write Error(text) and alert the admin chat
//   - duplicate/validation/rate-limit block: write Blocked(reason) and alert
//   - schedule miss: nothing
//
// Every non-schedule outcome is appended to the audit log. Panics are
// recovered per entry and per tick so one bad row never stops a pass.
package dispatch
