package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SK-Rookies-Final-Project/Backend/auth"
	"github.com/SK-Rookies-Final-Project/Backend/config"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

func TestBindingSetCapabilities(t *testing.T) {
	bindings := NewBindingSet(config.Default().Kafka.Topics)

	assert.Equal(t, auth.CapabilityMonitor, bindings.Required(types.CategoryLoginFailure))
	assert.Equal(t, auth.CapabilityMonitor, bindings.Required(types.CategorySuspiciousLocation))
	assert.Equal(t, auth.CapabilityManager, bindings.Required(types.CategorySystemDenied))
	assert.Equal(t, auth.CapabilityMonitor, bindings.Required(types.CategoryResourceDenied))
}

func TestBindingSetTopicsFollowConfig(t *testing.T) {
	topics := config.TopicsConfig{
		LoginFailure:       "custom-2time",
		SuspiciousLocation: "custom-notmove",
		SystemDenied:       "custom-system",
		ResourceDenied:     "custom-resource",
	}
	bindings := NewBindingSet(topics)

	assert.Equal(t, "custom-2time", bindings.Topic(types.CategoryLoginFailure))
	assert.Equal(t, "custom-resource", bindings.Topic(types.CategoryResourceDenied))
}

func TestBindingSetLookupUnknown(t *testing.T) {
	bindings := NewBindingSet(config.Default().Kafka.Topics)

	_, ok := bindings.Lookup(types.Category("bogus"))
	require.False(t, ok)

	b, ok := bindings.Lookup(types.CategorySystemDenied)
	require.True(t, ok)
	assert.Equal(t, "system-level-false", b.Topic)
}
