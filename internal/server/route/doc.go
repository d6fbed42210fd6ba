// Package route maps a request's method and path to a handler.
//
// A Table holds an ordered list of entries, each a Predicate paired with a
// handler, plus an optional default handler. Resolution walks the entries
// in registration order and returns the handler of the first predicate
// that matches; when none does, the default handler is returned.
//
// Tables are built once at startup and then shared read-only by every
// connection, so resolution takes no locks.
package route
