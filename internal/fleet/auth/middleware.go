package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gartstein/fleet/internal/fleet/authz"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserLoader loads the user a token was issued to.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticator turns a token into a principal.
type Authenticator struct {
	tokens *TokenService
	users  UserLoader
}

func NewAuthenticator(tokens *TokenService, users UserLoader) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate validates a raw token and loads its user. Inactive and
// deleted users are rejected.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*authz.Principal, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	id, _ := claims.UserID()
	user, err := a.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, e.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, e.ErrUnauthenticated
	}
	return authz.PrincipalFromUser(user), nil
}

// Middleware authenticates requests carrying an Authorization header and
// stores the principal in the request context. Requests without the header
// continue anonymously; permission checks reject them where required.
func (a *Authenticator) Middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, err := ExtractToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token header."})
			return
		}

		principal, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, e.ErrUnauthenticated) {
				logger.Error("failed to authenticate request", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}

		c.Request = c.Request.WithContext(authz.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
