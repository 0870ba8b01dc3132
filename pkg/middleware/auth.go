package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"watchearn/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const (
	HeaderInternalToken = "X-Internal-Token"
	userIDKey           = "user_id"
)

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Auth accepts HS256 bearer tokens signed with secret and exposes the userId
// claim through UserID.
func Auth(secret string) gin.HandlerFunc {
	if secret == "" {
		zap.L().Warn("[Auth] JWT secret is empty, every bearer token will be rejected")
	}

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || secret == "" {
			_ = c.Error(errutil.Unauthorized("access token required", nil))
			c.Abort()
			return
		}

		claims, err := ParseToken(secret, raw)
		if err != nil {
			_ = c.Error(errutil.Unauthorized("invalid access token", err))
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func ParseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, errors.New("token carries no user")
	}
	return claims, nil
}

// GenerateToken signs a token for userID. Used by the seeder and tests; the
// API never issues tokens itself.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// InternalToken guards service-to-service routes with a shared secret.
func InternalToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderInternalToken)
		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			_ = c.Error(errutil.Forbidden("internal token required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
