package chat

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/Tyrowin/convohub/internal/logging"
)

// Presence derives the online/offline roster and pushes it to every client.
type Presence struct {
	registry *Registry
	catalog  UserCatalog
	logger   logging.Logger

	// mu orders broadcasts: each one reads the registry after the previous
	// one finished enqueueing, so the last roster a client sees is current.
	mu sync.Mutex
}

// NewPresence builds a publisher. catalog may be nil, in which case only
// connected users are listed.
func NewPresence(registry *Registry, catalog UserCatalog, logger logging.Logger) *Presence {
	return &Presence{registry: registry, catalog: catalog, logger: logger}
}

// Snapshot returns every catalog user plus every connected user exactly
// once, sorted by username.
func (p *Presence) Snapshot(ctx context.Context) []UserStatus {
	return roster(p.knownUsernames(ctx), p.registry.Usernames())
}

// Broadcast sends the current roster to every registered connection. A
// recipient that cannot take the frame is skipped.
func (p *Presence) Broadcast(ctx context.Context) {
	known := p.knownUsernames(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := roster(known, p.registry.Usernames())
	frame, err := Encode(EventUsersList, statuses)
	if err != nil {
		p.logger.Error(ctx, "presence encode failed", "error", err)
		return
	}

	targets := p.registry.Connections()
	dropped := 0
	for _, c := range targets {
		if !c.Deliver(frame) {
			dropped++
		}
	}
	p.logger.Debug(ctx, "presence broadcast", "users", len(statuses), "targets", len(targets), "dropped", dropped)
}

func (p *Presence) knownUsernames(ctx context.Context) []string {
	if p.catalog == nil {
		return nil
	}
	names, err := p.catalog.AllUsernames(ctx)
	if err != nil {
		p.logger.Warn(ctx, "user catalog unavailable, listing connected users only", "error", err)
		return nil
	}
	return names
}

func roster(known, online []string) []UserStatus {
	status := make(map[string]bool, len(known)+len(online))
	for _, name := range known {
		if name != "" {
			status[name] = false
		}
	}
	for _, name := range online {
		status[name] = true
	}

	out := make([]UserStatus, 0, len(status))
	for name, on := range status {
		out = append(out, UserStatus{Username: name, Online: on})
	}
	slices.SortFunc(out, func(a, b UserStatus) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out
}
