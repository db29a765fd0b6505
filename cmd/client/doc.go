// Package client is a Go client for the taskflow API.
//
// Client.Do renews a missing access credential transparently: a 401 whose
// X-Auth-Error header is credential_missing triggers one refresh rotation,
// shared by every concurrent caller, and a single replay of the original
// request. When rotation fails the session is ended and the caller gets the
// original 401.
package client
