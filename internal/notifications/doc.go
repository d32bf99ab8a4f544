// Package notifications delivers session outcome events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Completed and
// failed analyses are individually toggled by configuration; unknown events
// are ignored.
package notifications
