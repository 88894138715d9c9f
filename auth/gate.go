package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

// PermissionLookup supplies the capability set granted to a user. Implemented
// by StaticPermissions in this process; a deployment may substitute a remote
// role service.
type PermissionLookup interface {
	GrantedCapabilities(ctx context.Context, username string) ([]Capability, error)
}

// DeniedError reports an authorization failure with the capability the
// caller was missing. The web layer renders it as a single structured error
// frame on the negotiated channel before closing.
type DeniedError struct {
	Username string
	Required Capability
}

// Error implements the error interface
func (e *DeniedError) Error() string {
	return fmt.Sprintf("user %s lacks required capability %s", e.Username, e.Required)
}

// Unwrap classifies the denial under the standard sentinel
func (e *DeniedError) Unwrap() error {
	return errors.ErrAccessDenied
}

// Gate performs the capability pre-check before the session registry creates
// a connection. It is an explicit call made by the stream-open handler, not
// an interceptor.
type Gate struct {
	perms  PermissionLookup
	logger *slog.Logger
}

// NewGate creates a permission gate backed by the given lookup
func NewGate(perms PermissionLookup, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{perms: perms, logger: logger.With("component", "gate")}
}

// Authorize checks the user's granted capabilities against the required one.
// Returns nil on allow, a *DeniedError on deny, and a wrapped error only when
// the lookup itself fails.
func (g *Gate) Authorize(ctx context.Context, username string, required Capability) error {
	granted, err := g.perms.GrantedCapabilities(ctx, username)
	if err != nil {
		return errors.Wrap(err, "Gate", "Authorize", "look up granted capabilities")
	}

	for _, c := range granted {
		if c.Satisfies(required) {
			g.logger.Debug("stream access granted",
				"user", username, "required", string(required), "via", string(c))
			return nil
		}
	}

	g.logger.Warn("stream access denied",
		"user", username, "required", string(required), "granted", granted)
	return &DeniedError{Username: username, Required: required}
}
