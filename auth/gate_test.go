package auth

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

func TestGateAllowsExactCapability(t *testing.T) {
	perms := NewStaticPermissions(map[string][]string{"alice": {"MONITOR"}})
	gate := NewGate(perms, nil)

	assert.NoError(t, gate.Authorize(context.Background(), "alice", CapabilityMonitor))
}

func TestGateManagerEscalatesToMonitor(t *testing.T) {
	perms := NewStaticPermissions(map[string][]string{"bob": {"MANAGER"}})
	gate := NewGate(perms, nil)

	assert.NoError(t, gate.Authorize(context.Background(), "bob", CapabilityMonitor))
}

func TestGateMonitorDeniedForManagerCategory(t *testing.T) {
	perms := NewStaticPermissions(map[string][]string{"carol": {"MONITOR"}})
	gate := NewGate(perms, nil)

	err := gate.Authorize(context.Background(), "carol", CapabilityManager)
	require.Error(t, err)

	var denied *DeniedError
	require.True(t, stderrors.As(err, &denied))
	assert.Equal(t, "carol", denied.Username)
	assert.Equal(t, CapabilityManager, denied.Required)
	assert.True(t, stderrors.Is(err, errors.ErrAccessDenied))
}

func TestGateUnknownUserDenied(t *testing.T) {
	gate := NewGate(NewStaticPermissions(nil), nil)

	err := gate.Authorize(context.Background(), "nobody", CapabilityMonitor)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAccessDenied))
}

type failingLookup struct{}

func (failingLookup) GrantedCapabilities(context.Context, string) ([]Capability, error) {
	return nil, stderrors.New("role service down")
}

func TestGateLookupFailureIsNotDenial(t *testing.T) {
	gate := NewGate(failingLookup{}, nil)

	err := gate.Authorize(context.Background(), "alice", CapabilityMonitor)
	require.Error(t, err)

	var denied *DeniedError
	assert.False(t, stderrors.As(err, &denied))
}
