package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"optioncore/pkg/license"
)

const userContextKey = "OperatorID"

// OperatorClaims is the JWT payload for an authenticated operator. There is
// no user-registration flow here (single-operator facade, per SPEC_FULL
// §4.13); tokens are issued out-of-band and only verified here.
type OperatorClaims struct {
	OperatorID string `json:"sub_id"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken signs a bearer token for operatorID, for an
// out-of-band admin tool (not part of this facade) to hand to an operator.
func GenerateOperatorToken(secret, operatorID string, expiresAt time.Time) (string, error) {
	claims := OperatorClaims{
		OperatorID: operatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseOperatorToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*OperatorClaims); ok && token.Valid {
		return claims.OperatorID, nil
	}
	return "", jwt.ErrTokenInvalidClaims
}

// AuthMiddleware enforces bearer JWT auth for protected routes.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_AUTH_HEADER",
				"error": "invalid Authorization header",
			})
			return
		}

		operatorID, err := parseOperatorToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(userContextKey, operatorID)
		c.Next()
	}
}

// CurrentOperatorID returns the authenticated operator ID from context.
func CurrentOperatorID(c *gin.Context) string {
	if v, ok := c.Get(userContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// LicenseMiddleware additionally gates the facade on a machine-bound
// license token (X-License-Token), independent of per-operator auth: a
// valid JWT but an expired/foreign-machine license still gets refused.
// Grounded on the teacher's pkg/license, whose machine binding
// (denisbrodbeck/machineid) C26's credential vault also uses for its
// master key.
func LicenseMiddleware(mgr *license.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-License-Token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":  "MISSING_LICENSE",
				"error": "missing X-License-Token header",
			})
			return
		}
		if err := mgr.Validate(token); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":  "INVALID_LICENSE",
				"error": err.Error(),
			})
			return
		}
		c.Next()
	}
}
