// Package chat implements the group-chat core: a Registry mapping participant
// names to their connection handles, and a Hub that announces joins and
// leaves, relays chat lines to every participant and drives one receive loop
// per connected session.
//
// The package knows nothing about HTTP or WebSockets. Transports plug in by
// implementing Handle.
package chat
