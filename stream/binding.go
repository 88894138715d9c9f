package stream

import (
	"github.com/SK-Rookies-Final-Project/Backend/auth"
	"github.com/SK-Rookies-Final-Project/Backend/config"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// Binding ties one stream category to its bus topic and the minimum
// capability a caller needs to open it.
type Binding struct {
	Category types.Category
	Topic    string
	Required auth.Capability
}

// BindingSet is the immutable category table built at startup. Topics come
// from configuration; the category set and capability requirements do not.
type BindingSet struct {
	byCategory map[types.Category]Binding
}

// NewBindingSet builds the category table from the configured topic names
func NewBindingSet(topics config.TopicsConfig) *BindingSet {
	bindings := []Binding{
		{types.CategoryLoginFailure, topics.LoginFailure, auth.CapabilityMonitor},
		{types.CategorySuspiciousLocation, topics.SuspiciousLocation, auth.CapabilityMonitor},
		{types.CategorySystemDenied, topics.SystemDenied, auth.CapabilityManager},
		{types.CategoryResourceDenied, topics.ResourceDenied, auth.CapabilityMonitor},
	}

	byCategory := make(map[types.Category]Binding, len(bindings))
	for _, b := range bindings {
		byCategory[b.Category] = b
	}
	return &BindingSet{byCategory: byCategory}
}

// Lookup returns the binding for a category
func (s *BindingSet) Lookup(category types.Category) (Binding, bool) {
	b, ok := s.byCategory[category]
	return b, ok
}

// Topic returns the bus topic bound to a category, or "" if unknown
func (s *BindingSet) Topic(category types.Category) string {
	return s.byCategory[category].Topic
}

// Required returns the minimum capability for a category, or "" if unknown
func (s *BindingSet) Required(category types.Category) auth.Capability {
	return s.byCategory[category].Required
}
