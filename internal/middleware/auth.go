// Package middleware provides HTTP middleware components for authentication,
// authorization, rate limiting, and other cross-cutting concerns.
package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys populated by RequireAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "user_role"
)

// APIKeyHeader carries the static API key.
const APIKeyHeader = "X-API-Key"

// RoleAdmin grants access to the ingestion trigger.
const RoleAdmin = "admin"

// JWTClaims represents the JWT token claims.
type JWTClaims struct {
	// UserID is the subject the token was issued to.
	UserID string `json:"user_id"`
	// Role is an optional role name; "admin" unlocks write routes.
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides JWT authentication middleware.
type AuthMiddleware struct {
	secretKey []byte
	apiKey    string
	now       func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware.
//
// Parameters:
//
//	secretKey: Secret key for signing tokens.
//
// Returns:
//
//	*AuthMiddleware: Initialized middleware.
func NewAuthMiddleware(secretKey string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// WithAPIKey also accepts a static key in the X-API-Key header.
// Key holders are authenticated without a role.
func (am *AuthMiddleware) WithAPIKey(key string) *AuthMiddleware {
	am.apiKey = key
	return am
}

// RequireAuth middleware validates JWT tokens.
// It requires a valid Bearer token in the Authorization header, or the
// configured API key in X-API-Key.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.apiKey != "" && c.GetHeader(APIKeyHeader) != "" {
			if subtle.ConstantTimeCompare([]byte(c.GetHeader(APIKeyHeader)), []byte(am.apiKey)) != 1 {
				abortJSON(c, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}
			c.Set(ContextUserID, "api-key")
			c.Set(ContextRole, "")
			c.Next()
			return
		}

		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if c.GetHeader("Authorization") == "" {
				abortJSON(c, http.StatusUnauthorized, "Authorization header required")
				return
			}
			abortJSON(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := am.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortJSON(c, http.StatusUnauthorized, "Token expired")
				return
			}
			abortJSON(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin rejects requests whose token does not carry the admin role.
// It must run after RequireAuth.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != RoleAdmin {
			abortJSON(c, http.StatusForbidden, "Admin privileges required")
			return
		}
		c.Next()
	}
}

// GenerateToken creates a new JWT token for a user.
//
// Parameters:
//
//	userID: User identifier.
//	role: Role claim, empty for regular clients.
//	duration: Token validity duration.
//
// Returns:
//
//	string: Signed token string.
//	error: Error if generation fails.
func (am *AuthMiddleware) GenerateToken(userID, role string, duration time.Duration) (string, error) {
	now := am.now()
	claims := &JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(am.secretKey)
}

// ValidateToken validates a JWT token and returns claims.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	}, jwt.WithTimeFunc(am.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// bearerToken extracts the token from "Bearer <token>", case-insensitive per RFC 6750.
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
