package api

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/olympia/internal/errors"
)

const (
	RoleAdmin = "admin"
	RoleHost  = "host"

	claimsKey = "olympia.claims"
)

// Claims are issued by the auth service in front of this API.
type Claims struct {
	Role     string   `json:"role"`
	MatchIDs []string `json:"match_ids,omitempty"`
	jwt.RegisteredClaims
}

// hosts reports whether the claims allow running the given match.
func (c *Claims) hosts(matchID string) bool {
	if c == nil {
		return false
	}

	switch c.Role {
	case RoleAdmin:
		return true
	case RoleHost:
		return slices.Contains(c.MatchIDs, matchID)
	default:
		return false
	}
}

// authenticate parses the bearer token when there is one. Requests without a token are guests.
func (a *API) authenticate(c *gin.Context) {
	h := c.GetHeader("Authorization")
	if h == "" {
		c.Next()
		return
	}

	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("authorization header must be a bearer token")))
		return
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.hostSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		abort(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err),
		))
		return
	}

	c.Set(claimsKey, &claims)
	c.Next()
}

func claimsOf(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}

	claims, _ := v.(*Claims)
	return claims
}

// requireAdmin guards the match staffing and round setup routes.
func requireAdmin(c *gin.Context) {
	claims := claimsOf(c)
	if claims == nil {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("sign in required")))
		return
	}
	if claims.Role != RoleAdmin {
		abort(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("admin role required")))
		return
	}

	c.Next()
}

// requireHost fails unless the caller hosts the match.
func requireHost(c *gin.Context, matchID string) error {
	claims := claimsOf(c)
	if claims == nil {
		return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("sign in required"))
	}
	if !claims.hosts(matchID) {
		return errors.New(errors.CodePermissionDenied, errors.WithMessagef("not a host of match %s", matchID))
	}

	return nil
}
