package auth

// Capability is a named permission level checked before a stream opens.
type Capability string

// The three capability levels, ordered MONITOR < MANAGER < ADMIN.
const (
	CapabilityMonitor Capability = "MONITOR"
	CapabilityManager Capability = "MANAGER"
	CapabilityAdmin   Capability = "ADMIN"
)

// Valid reports whether c is a known capability
func (c Capability) Valid() bool {
	switch c {
	case CapabilityMonitor, CapabilityManager, CapabilityAdmin:
		return true
	}
	return false
}

// Satisfies reports whether a grant of c meets the required capability.
// Rules: exact match; ADMIN satisfies everything; MANAGER satisfies MONITOR.
// The MANAGER->MONITOR implication is one-way and no other cross-capability
// implications exist.
func (c Capability) Satisfies(required Capability) bool {
	if c == required {
		return true
	}
	if c == CapabilityAdmin {
		return true
	}
	if c == CapabilityManager && required == CapabilityMonitor {
		return true
	}
	return false
}

// ParseCapability converts a config string to a Capability
func ParseCapability(s string) (Capability, bool) {
	c := Capability(s)
	return c, c.Valid()
}
