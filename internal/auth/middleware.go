// Package auth verifies bearer tokens issued by the hosted auth provider.
package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SubjectKey is the gin context key holding the token subject.
const SubjectKey = "auth.subject"

var errMissingToken = errors.New("missing bearer token")

// Middleware rejects requests without a valid HS256 bearer token signed with
// secret. An empty secret disables the check.
func Middleware(secret []byte) gin.HandlerFunc {
	if len(secret) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(c *gin.Context) {
		subject, err := verify(parser, secret, c.GetHeader("Authorization"))
		if err != nil {
			log.Printf("[WARN] auth: rejected %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

func verify(parser *jwt.Parser, secret []byte, header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}
	var claims jwt.RegisteredClaims
	if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}); err != nil {
		return "", err
	}
	return claims.Subject, nil
}
