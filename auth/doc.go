// Package auth provides the authorization pieces around the streaming core:
// capability levels and their escalation rules, the permission gate checked
// before a stream opens, the token service (JWT with revocation), and the
// per-user bus credential cache consumed by the consumer factory.
package auth
