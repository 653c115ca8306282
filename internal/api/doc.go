// Package api provides the HTTP server for Clinic Core.
//
// Every inbound request passes through the session gateway before it
// reaches a handler: the gateway classifies the path, validates the
// session cookie, resolves the caller's profile, and either admits the
// request or redirects it. Handlers behind the gateway read the
// resolved identity from the request context.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
