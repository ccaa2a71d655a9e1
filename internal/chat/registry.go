package chat

import (
	"slices"
	"sync"
)

// Registry is the single owner of presence and room-membership state.
//
// It keeps connection id -> connection, username -> connection id, and the
// membership sets in both directions. Every mutation happens under mu, so
// readers always observe the two identity maps as mutual inverses and never
// see a half-removed connection.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Conn                // conn id -> conn
	users   map[string]string              // username -> conn id
	joined  map[string]map[string]struct{} // conn id -> rooms
	members map[string]map[string]struct{} // room -> conn ids
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]Conn),
		users:   make(map[string]string),
		joined:  make(map[string]map[string]struct{}),
		members: make(map[string]map[string]struct{}),
	}
}

// Register admits c. Registering the same connection id again is a no-op.
//
// When another connection is already registered for c's username it is
// evicted: removed from the registry and every room, and returned so the
// caller can close it once the lock is released.
func (r *Registry) Register(c Conn) (evicted Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.ID()
	if _, ok := r.conns[id]; ok {
		return nil
	}

	if prevID, ok := r.users[c.Username()]; ok && prevID != id {
		evicted = r.conns[prevID]
		r.removeLocked(prevID)
	}

	r.conns[id] = c
	r.users[c.Username()] = id
	r.joined[id] = make(map[string]struct{})
	return evicted
}

// Unregister removes the connection and all of its room memberships. It
// reports whether the connection was registered; a connection that was
// already evicted or removed yields false.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return false
	}
	r.removeLocked(connID)
	return true
}

func (r *Registry) removeLocked(connID string) {
	c := r.conns[connID]
	delete(r.conns, connID)
	if r.users[c.Username()] == connID {
		delete(r.users, c.Username())
	}

	for room := range r.joined[connID] {
		set := r.members[room]
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	delete(r.joined, connID)
}

// ConnectionFor returns the live connection of username.
func (r *Registry) ConnectionFor(username string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.users[username]
	if !ok {
		return nil, false
	}
	return r.conns[id], true
}

// UsernameFor returns the username bound to a connection id.
func (r *Registry) UsernameFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return c.Username(), true
}

// Join adds room to the connection's memberships. It is idempotent and
// reports false only when the connection is not registered.
func (r *Registry) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	rooms[room] = struct{}{}

	set, ok := r.members[room]
	if !ok {
		set = make(map[string]struct{})
		r.members[room] = set
	}
	set[connID] = struct{}{}
	return true
}

// Leave removes room from the connection's memberships. It reports false
// only when the connection is not registered.
func (r *Registry) Leave(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	delete(rooms, room)

	if set, ok := r.members[room]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	return true
}

// IsMember reports whether the connection has joined room.
func (r *Registry) IsMember(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.joined[connID][room]
	return ok
}

// Rooms returns the rooms a connection has joined, sorted.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		rooms = append(rooms, room)
	}
	slices.Sort(rooms)
	return rooms
}

// Members returns a point-in-time snapshot of the connections in room.
func (r *Registry) Members(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.members[room]))
	for id := range r.members[room] {
		conns = append(conns, r.conns[id])
	}
	return conns
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Usernames returns the usernames that currently have a live connection.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
