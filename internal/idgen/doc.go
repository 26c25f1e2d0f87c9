// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Boot sessions, kernel events and spooled messages all take their ids from
// here. It lives under `internal` because callers should treat identifiers
// as opaque strings.
package idgen
