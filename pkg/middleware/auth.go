package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
)

const (
	// ContextKeyUserID is the context key for the authenticated user
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the context key for the user's email
	ContextKeyEmail = "email"
	// ContextKeyRole is the context key for the user's role
	ContextKeyRole = "role"

	// UserIDHeader carries the user ID when a trusted proxy already authenticated the caller
	UserIDHeader = "X-User-ID"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	Secret string
	Issuer string
	// AllowUserHeader trusts X-User-ID when no Authorization header is sent
	AllowUserHeader bool
}

// Claims is the subset of token claims the service uses
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// Auth authenticates requests with an HS256 bearer token
func Auth(config *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && config.AllowUserHeader {
			if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
				c.Set(ContextKeyUserID, userID)
				c.Next()
				return
			}
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "Authorization header is required"))
			return
		}

		claims, err := ValidateToken(token, config)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", msg))
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		if claims.Email != "" {
			c.Set(ContextKeyEmail, claims.Email)
		}
		if claims.Role != "" {
			c.Set(ContextKeyRole, claims.Role)
		}
		c.Next()
	}
}

// ValidateToken parses and verifies a token signed with config.Secret
func ValidateToken(tokenString string, config *AuthConfig) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &Claims{UserID: userID, Email: email, Role: role}, nil
}

// GenerateToken issues an access token for userID, used by the simulator and tests
func GenerateToken(userID string, config *AuthConfig, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"sub":     userID,
		"role":    "customer",
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if config.Issuer != "" {
		claims["iss"] = config.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.Secret))
}

// GetUserID returns the authenticated user ID
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
