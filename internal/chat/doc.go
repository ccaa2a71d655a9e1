// Package chat implements the transport-agnostic core of the messaging hub:
// the connection registry, presence roster, room broadcaster, private router
// and token authenticator.
//
// The package never performs network I/O itself. Connections are reached
// through the Conn interface whose Deliver method must not block; durable
// storage is reached through MessageStore and UserCatalog. All shared mutable
// state (who is connected, who is in which room) lives in a single Registry
// guarded by one lock, and nothing is delivered or persisted while that lock
// is held.
package chat
