// Package stream implements the streaming bridge core: the session registry
// that tracks every client connection per (user, category) pair, and the
// category consumers that poll the bus and fan records out to those
// connections.
//
// The registry owns all shared mutable state. Connection maps and consumer
// handles for one category live in one bucket guarded by one lock, so
// register/deregister and consumer start/stop for a pair are atomic with
// respect to each other, and traffic in one category never serializes
// another.
package stream
