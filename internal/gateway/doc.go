// Package gateway is the per-request session and authorization core.
//
// Every inbound request flows through three pieces:
//
//   - Classifier maps the request path to a route class using the
//     config-driven prefix tables (longest prefix wins).
//   - Evaluator combines route class, session presence, and role into an
//     AccessDecision. It is a pure function: same inputs, same decision,
//     no side effects.
//   - Propagator accumulates session cookie writes during the request
//     and applies them exactly once when the response headers go out,
//     so the refreshed credential rides on redirects as well as on
//     normal responses. Last write wins within a single request.
//
// Failure policy is fail closed: a validation error or upstream timeout
// is treated as "no session" and logged, never surfaced as a 5xx. A
// session whose profile cannot be resolved passes to unrestricted
// routes but never satisfies a role check.
package gateway
