package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/roomforge-backend/internal/http/response"
	"github.com/yungbote/roomforge-backend/internal/platform/apierr"
	"github.com/yungbote/roomforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

// AuthMiddleware resolves the project owner from an HS256 bearer token. With no
// secret configured every request is anonymous and projects are unowned.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), secret: []byte(strings.TrimSpace(secret))}
}

func (am *AuthMiddleware) Enabled() bool {
	return am != nil && len(am.secret) > 0
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.Next()
			return
		}
		tokenString := extractBearer(c)
		if tokenString == "" {
			response.RespondError(c, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token")))
			return
		}
		owner, err := am.ownerFromToken(tokenString)
		if err != nil {
			am.log.Debug("Rejected bearer token", "error", err)
			response.RespondError(c, apierr.New(http.StatusUnauthorized, "unauthorized", err))
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithOwner(c.Request.Context(), owner))
		c.Next()
	}
}

func (am *AuthMiddleware) ownerFromToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("invalid or expired token")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
