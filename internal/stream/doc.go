// Package stream fans pipeline progress out to observers of a session.
//
// Registry keeps the set of observers currently attached to each session and
// broadcasts every published message to them in publish order. There is no
// replay: an observer attaching late sees only messages published after it
// attached and must ask for the current status explicitly. Observers that
// cannot keep up are detached rather than allowed to stall the publisher.
//
// Handler exposes the registry over a WebSocket endpoint.
package stream
