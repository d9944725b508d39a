// Package harness runs YAML sync scenarios against a real engine.
//
// Each scenario gets a fresh in-memory SQLite queue, a scripted stub
// transport, a deterministic clock and sequential idempotency keys, so the
// same scenario always produces the same trace.
//
// # Scenario Format
//
//	name: fifo_dependency_resolution
//	description: "What this scenario validates"
//	connected: false
//	responses:
//	  - status: 201
//	    body: '{"id":500}'
//	steps:
//	  - action: enqueue
//	    method: POST
//	    url: /api/inspections
//	    body: { site: North }
//	    temp_id: -1
//	  - action: connect
//	  - action: drain
//	assertions:
//	  - type: call_count
//	    count: 2
//	  - type: call
//	    index: 2
//	    method: POST
//	    url: /api/inspections/500/items
//	    body: { inspection_id: 500 }
//
// # Step Actions
//
//   - enqueue: persist a write intent (drains when connected)
//   - connect / disconnect: SetConnected(true / false)
//   - drain: one explicit ProcessQueue pass
//
// # Assertion Types
//
//   - call_count: number of transport calls
//   - call: method, url and body of the Nth call (1-based)
//   - pending_count: records still pending at the end
//   - status_sequence: every status seen by a subscriber registered first
//
// Responses are consumed in order; once exhausted, default_response (or
// 200 "{}") answers every call.
package harness
