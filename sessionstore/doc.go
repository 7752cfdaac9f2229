// Package sessionstore implements a Gorilla sessions store
// (github.com/gorilla/sessions) that persists session data through a
// statestore.Store.
//
// The browser cookie carries only a random session ID, signed and
// encrypted with keys derived from a single caller-supplied secret.
// Session values live in the backing table, one attribute per value,
// and expire there according to the cookie's max age.
//
// If multiple applications share the same table, each should use a
// different namespace so that their record keys cannot collide.
package sessionstore
