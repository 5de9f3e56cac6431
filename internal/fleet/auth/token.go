// Package auth issues and validates API tokens, hashes passwords and
// authenticates HTTP and gRPC requests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL = 24 * time.Hour
	issuer          = "fleet"
)

// Claims are the token claims. Role and company are informational; the
// middleware reloads the user so changes apply immediately.
type Claims struct {
	CompanyID string `json:"company,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService signs and validates HMAC tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for user.
func (s *TokenService) Issue(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if user.CompanyID != nil {
		claims.CompanyID = user.CompanyID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate checks the token signature and expiry and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", e.ErrUnauthenticated)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: invalid subject", e.ErrUnauthenticated)
	}
	return claims, nil
}

var errMissingHeader = errors.New("authorization header required")

// ExtractToken reads "Token <key>" or "Bearer <key>" from an
// Authorization header value.
func ExtractToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: %v", e.ErrUnauthenticated, errMissingHeader)
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || (scheme != "Token" && scheme != "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization format", e.ErrUnauthenticated)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", e.ErrUnauthenticated)
	}
	return token, nil
}
