// Package session owns the client side of one EPP conversation.
//
// Ownership boundary:
// - connect and greeting exchange
// - login/logout and the Disconnected/Connected/LoggedIn state machine
// - command/response correlation by clTRID on a single in-flight exchange
// - retry/backoff primitives for callers that reconnect
//
// A Session is terminal once its transport fails or logout completes; build
// a new one to reconnect.
package session
