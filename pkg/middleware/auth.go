package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/response"
)

const (
	// ContextKeyUserID holds the authenticated user id
	ContextKeyUserID = "user_id"
	// ContextKeyUserRole holds the authenticated user's role claim
	ContextKeyUserRole = "user_role"
	// UserIDHeader is set by a trusted upstream gateway
	UserIDHeader = "X-User-ID"
	// UserRoleHeader is set by a trusted upstream gateway
	UserRoleHeader = "X-User-Role"

	RoleAdmin = "admin"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthConfig configures bearer token verification
type AuthConfig struct {
	// Secret is the HS256 signing key
	Secret string
	// Issuer, when set, must match the iss claim
	Issuer string
	// TrustGatewayHeader accepts X-User-ID / X-User-Role when no token is present
	TrustGatewayHeader bool
}

// Claims are the token claims the service reads
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth authenticates the caller and stores the user id and role in the
// gin context. Requests without a valid identity get 401.
func Auth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		if header == "" && cfg.TrustGatewayHeader {
			if userID := c.GetHeader(UserIDHeader); userID != "" {
				c.Set(ContextKeyUserID, userID)
				c.Set(ContextKeyUserRole, c.GetHeader(UserRoleHeader))
				c.Next()
				return
			}
		}

		claims, err := ParseBearer(header, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.NewError("UNAUTHORIZED", err.Error()))
			return
		}

		c.Set(ContextKeyUserID, claims.Subject)
		c.Set(ContextKeyUserRole, claims.Role)
		c.Next()
	}
}

// ParseBearer validates an "Authorization: Bearer <token>" header value
func ParseBearer(header string, cfg *AuthConfig) (*Claims, error) {
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// RequireRole rejects callers whose role claim differs from role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextKeyUserRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, response.NewError("FORBIDDEN", "insufficient role"))
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextKeyUserID)
	return userID, userID != ""
}

// IsAdmin reports whether the caller carries the admin role
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextKeyUserRole) == RoleAdmin
}
