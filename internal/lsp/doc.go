// Package lsp relays language-service protocol messages between an embedded
// formula editor widget and the remote formula-language service.
//
// The remote service is only reachable through HTTP POST. Every outbound
// protocol message is posted to the "lsp" endpoint and the reply body carries
// zero or more inbound messages as a JSON array of strings.
//
// # Components
//
//   - Relay: posts one message, parses the reply batch and delivers each
//     inbound message, in order, to a single delivery function.
//   - Processor: the MessageProcessor handed to the widget. It holds exactly
//     one listener; AddListener replaces it and Dispose does nothing.
//
// # Failure policy
//
// Relay.SendAsync never reports failures. Non-2xx replies are dropped,
// malformed batches are logged and dropped, and nothing is retried. The
// widget resends state as needed. Relay.Deliver exposes the underlying
// result for callers and tests that need it.
//
// # Ordering
//
// Messages from one reply are delivered synchronously in array order.
// Replies to different sends are delivered one batch at a time but in
// whatever order the replies arrive.
//
// Protocol types in this package are the JSON-RPC 2.0 and LSP shapes used by
// the development service; the relay itself never inspects message contents.
package lsp
