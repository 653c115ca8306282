// Package authstate provides the client-side authentication state
// machine consumed by long-lived clients (the SPA shell, the websocket
// session hub). It mirrors the gateway's access decisions locally so a
// client can branch on auth status without a server round trip, while
// the server decision remains authoritative on the next navigation.
//
// State is immutable per version: every transition replaces the whole
// snapshot, so reads are safe from any goroutine without coordination.
// Mutating operations serialize through a single in-flight gate; a
// second mutation attempted while one is running is rejected with
// ErrOperationInFlight rather than queued.
package authstate
