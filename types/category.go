// Package types holds the shared domain types used across the streaming
// bridge packages.
package types

// Category identifies one of the four fixed audit-event stream classes.
// Each category is bound at startup to exactly one bus topic and one minimum
// required capability; the set itself is immutable.
type Category string

// The four stream categories.
const (
	// CategoryLoginFailure carries repeated-authentication-failure alerts
	CategoryLoginFailure Category = "repeated-login-failure"
	// CategorySuspiciousLocation carries access attempts from unusual locations
	CategorySuspiciousLocation Category = "suspicious-location"
	// CategorySystemDenied carries cluster-level authorization denials
	CategorySystemDenied Category = "system-permission-denied"
	// CategoryResourceDenied carries resource-level authorization denials
	CategoryResourceDenied Category = "resource-permission-denied"
)

// Categories returns all stream categories in a stable order
func Categories() []Category {
	return []Category{
		CategoryLoginFailure,
		CategorySuspiciousLocation,
		CategorySystemDenied,
		CategoryResourceDenied,
	}
}

// ParseCategory converts a path or config string to a Category
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryLoginFailure, CategorySuspiciousLocation, CategorySystemDenied, CategoryResourceDenied:
		return Category(s), true
	}
	return "", false
}

// String returns the category name
func (c Category) String() string {
	return string(c)
}
