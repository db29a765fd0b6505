// Package api exposes the authentication HTTP surface: registration,
// password and Google login, refresh rotation, logout, profile, and the
// RequireAuth middleware that guards every other protected route.
//
// Browsers carry both credentials as HttpOnly cookies. Non-browser clients
// may send the access credential as a bearer value and the refresh
// credential in the rotation request body.
package api
