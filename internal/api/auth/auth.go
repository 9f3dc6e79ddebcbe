// Package auth verifies the bearer tokens issued by the notes application.
// The token subject is the owner id every /api/v1 route is scoped to.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "owner_id"

// ErrInvalidToken covers every rejected token other than an expired one.
var ErrInvalidToken = errors.New("invalid bearer token")

// Config holds verifier settings.
type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// Verifier validates HS256 tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier for tokens signed with cfg.Secret.
func NewVerifier(cfg Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify returns the token's owner id. An expired but otherwise genuine
// token returns its owner id together with domain.ErrAuthExpired.
func (v *Verifier) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return claims.Subject, domain.ErrAuthExpired
	default:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// owner id in the gin context. onExpired, if set, is told whose session
// expired.
func Middleware(v *Verifier, onExpired func(ownerID string), logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ownerID, err := v.Verify(strings.TrimSpace(token))
		if errors.Is(err, domain.ErrAuthExpired) {
			logger.Info("Session expired", slog.String("owner_id", ownerID))
			if onExpired != nil && ownerID != "" {
				onExpired(ownerID)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth_expired"})
			return
		}
		if err != nil {
			logger.Warn("Rejected bearer token",
				slog.String("path", c.Request.URL.Path),
				slog.String("error", err.Error()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// OwnerID returns the owner id stored by Middleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
