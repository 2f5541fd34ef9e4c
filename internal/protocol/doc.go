// Package protocol owns the EPP wire contract shared by client and server.
//
// Ownership boundary:
// - error taxonomy (this package)
// - transport: plain/TLS byte streams
// - frame: 4-byte total-length framing (RFC 5734)
// - codec: namespace registry and XML envelope (RFC 5730)
// - session: client session state machine and command correlation
package protocol
