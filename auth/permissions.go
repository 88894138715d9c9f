package auth

import (
	"context"
	"sync"
)

// StaticPermissions is a config-driven PermissionLookup: a fixed mapping from
// username to granted capabilities, loaded at startup. Unknown users have no
// capabilities.
type StaticPermissions struct {
	mu     sync.RWMutex
	grants map[string][]Capability
}

// NewStaticPermissions builds the lookup from config grants, silently
// dropping unknown capability names.
func NewStaticPermissions(grants map[string][]string) *StaticPermissions {
	parsed := make(map[string][]Capability, len(grants))
	for user, names := range grants {
		caps := make([]Capability, 0, len(names))
		for _, name := range names {
			if c, ok := ParseCapability(name); ok {
				caps = append(caps, c)
			}
		}
		parsed[user] = caps
	}
	return &StaticPermissions{grants: parsed}
}

// GrantedCapabilities implements PermissionLookup
func (p *StaticPermissions) GrantedCapabilities(_ context.Context, username string) ([]Capability, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	caps := p.grants[username]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out, nil
}

// Grant adds a capability for a user at runtime (used by tests and seeding)
func (p *StaticPermissions) Grant(username string, c Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants[username] = append(p.grants[username], c)
}
