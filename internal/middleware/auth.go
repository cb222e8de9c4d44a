package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/jwt"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
)

const ContextKeyUser = "current_user"

// TokenVerifier validates identity-provider tokens.
type TokenVerifier interface {
	Parse(token string) (*jwt.Claims, error)
}

// UserResolver maps verified claims onto a local user row, creating it on
// first sight.
type UserResolver interface {
	Resolve(ctx context.Context, claims *jwt.Claims) (*models.UserModel, error)
}

// Auth rejects requests without a valid identity token.
func Auth(v TokenVerifier, users UserResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := authenticate(c, v, users, log)
		if !ok {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// OptionalAuth sets the user if a valid token is present, but does not block the request.
func OptionalAuth(v TokenVerifier, users UserResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if extractToken(c) != "" {
			if user, ok := authenticate(c, v, users, log); ok {
				c.Set(ContextKeyUser, user)
			}
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the current user holds at least min.
// Must run after Auth.
func RequireRole(min string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Unauthorized(c)
			return
		}
		if !models.RoleAtLeast(user.Role, min) {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, v TokenVerifier, users UserResolver, log *zap.Logger) (*models.UserModel, bool) {
	token := extractToken(c)
	if token == "" {
		return nil, false
	}
	claims, err := v.Parse(token)
	if err != nil {
		log.Debug("token rejected", zap.Error(err))
		return nil, false
	}
	user, err := users.Resolve(c.Request.Context(), claims)
	if err != nil {
		log.Error("resolve user", zap.String("sub", claims.Subject), zap.Error(err))
		return nil, false
	}
	return user, true
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *models.UserModel {
	v, _ := c.Get(ContextKeyUser)
	u, _ := v.(*models.UserModel)
	return u
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return ""
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUser(c) != nil
}

// Actor names the current user for audit entries.
func Actor(c *gin.Context) string {
	u := CurrentUser(c)
	switch {
	case u == nil:
		return ""
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	// Clerk keeps the session token in the __session cookie.
	if raw, err := c.Cookie("__session"); err == nil {
		return NormalizeToken(raw)
	}
	return ""
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
