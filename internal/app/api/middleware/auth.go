package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/response"
)

// AuthMiddleware validates the HS256 bearer token and injects the user ID
// into gin.Context (key: "user_id") and the request's context.Context.
// Tokens carrying role=admin additionally set "is_admin".
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c)
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c)
			return
		}

		sub, ok := claims["sub"].(string)
		if !ok || strings.TrimSpace(sub) == "" {
			abortUnauthorized(c)
			return
		}

		c.Set("user_id", sub)
		if role, _ := claims["role"].(string); role == "admin" {
			c.Set("is_admin", true)
		}
		ctx := context.WithValue(c.Request.Context(), "user_id", sub)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// AdminOnly rejects requests whose token lacks the admin role. It must run
// after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("is_admin") {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
}
