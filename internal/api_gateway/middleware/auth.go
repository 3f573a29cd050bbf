package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
)

// ActorKey is the key used to store the authenticated actor in the context
const ActorKey = "actor"

// Claims are the bearer token claims the API reads. The subject is the actor id.
type Claims struct {
	IsOwner bool `json:"is_owner"`
	jwt.RegisteredClaims
}

// Auth verifies the HS256 bearer token and stores the actor it names.
// Tokens are issued elsewhere; this only checks them.
func Auth(logger *slog.Logger, secret, issuer string) gin.HandlerFunc {
	var opts []jwt.ParserOption
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		requestLogger := logger
		if correlationID := GetCorrelationID(c); correlationID != "" {
			requestLogger = logger.With("correlation_id", correlationID)
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			requestLogger.Warn("Authorization header missing", "path", c.Request.URL.Path)
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			requestLogger.Warn("Authorization header format invalid", "path", c.Request.URL.Path)
			abortUnauthorized(c, "Authorization header format must be Bearer {token}")
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil {
			requestLogger.Warn("Invalid token", "error", err)
			msg := "Invalid token"
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				msg = "Token has expired"
			case errors.Is(err, jwt.ErrTokenNotValidYet):
				msg = "Token not valid yet"
			}
			abortUnauthorized(c, msg)
			return
		}

		if strings.TrimSpace(claims.Subject) == "" {
			requestLogger.Warn("Subject missing from valid token")
			abortUnauthorized(c, "Invalid token claims")
			return
		}

		c.Set(ActorKey, check.Actor{ID: claims.Subject, IsOwner: claims.IsOwner})
		c.Next()
	}
}

// GetActor retrieves the authenticated actor from the gin context if present
func GetActor(c *gin.Context) (check.Actor, bool) {
	if v, exists := c.Get(ActorKey); exists {
		if actor, ok := v.(check.Actor); ok {
			return actor, true
		}
	}
	return check.Actor{}, false
}

func abortUnauthorized(c *gin.Context, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, response)
}
