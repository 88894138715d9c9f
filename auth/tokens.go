package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

// TokenService is the access-collaborator surface the streaming core
// consumes: validation, identity extraction, and revocation.
type TokenService interface {
	Validate(token string) bool
	Username(token string) (string, error)
	Revoke(token string)
}

// TokenIssuer extends TokenService with issuance, used by the login handler.
type TokenIssuer interface {
	TokenService
	Issue(username string) (string, error)
}

// JWTService implements TokenIssuer with HS256-signed tokens and an
// in-process revocation list keyed by token id.
type JWTService struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry, pruned on access
}

// NewJWTService creates a token service with the given signing secret and TTL
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTService{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: make(map[string]time.Time),
	}
}

// Issue creates a signed token for the given username
func (s *JWTService) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "JWTService", "Issue", "sign token")
	}
	return signed, nil
}

// parse verifies the signature and expiry, returning the claims
func (s *JWTService) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrUnauthenticated
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.ErrUnauthenticated
	}
	return claims, nil
}

// Validate implements TokenService
func (s *JWTService) Validate(token string) bool {
	claims, err := s.parse(token)
	if err != nil {
		return false
	}
	return !s.isRevoked(claims.ID)
}

// Username implements TokenService
func (s *JWTService) Username(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", errors.Wrap(err, "JWTService", "Username", "parse token")
	}
	if s.isRevoked(claims.ID) {
		return "", errors.Wrap(errors.ErrTokenRevoked, "JWTService", "Username", "check revocation")
	}
	return claims.Subject, nil
}

// Revoke implements TokenService. Revoking an invalid token is a no-op.
func (s *JWTService) Revoke(token string) {
	claims, err := s.parse(token)
	if err != nil {
		return
	}

	expiry := time.Now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	s.mu.Lock()
	s.revoked[claims.ID] = expiry
	s.mu.Unlock()
}

// isRevoked checks the revocation list, pruning expired entries as it goes
func (s *JWTService) isRevoked(jti string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}

	_, revoked := s.revoked[jti]
	return revoked
}
