// Package admin serves the operator API: cookie-session login backed
// by bcrypt users, dashboard statistics, API-key management and
// upstream account onboarding through the OIDC device flow.
//
// Everything except login sits behind Sessions.Middleware, which
// verifies the HS256 session cookie and requires the admin flag.
package admin
