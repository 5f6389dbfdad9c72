package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rl1809/marketplace/internal/core/domain"
)

const principalKey = "principal"

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type Authz struct {
	cfg AuthConfig
}

func NewAuthz(cfg AuthConfig) *Authz {
	return &Authz{cfg: cfg}
}

// Require authenticates the caller and ensures every listed capability is held.
// With no capabilities it only authenticates.
func (a *Authz) Require(caps ...domain.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := a.authenticate(c)
		if !ok {
			return
		}
		if err := p.Require(caps...); err != nil {
			forbidden(c, "insufficient_scope", "missing required capability")
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// RequireAny passes when the caller holds at least one of caps.
func (a *Authz) RequireAny(caps ...domain.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := a.authenticate(c)
		if !ok {
			return
		}
		for _, cp := range caps {
			if p.Can(cp) {
				setPrincipal(c, p)
				c.Next()
				return
			}
		}
		forbidden(c, "insufficient_scope", "missing required capability")
	}
}

func (a *Authz) authenticate(c *gin.Context) (domain.Principal, bool) {
	raw := bearer(c)
	if raw == "" {
		unauth(c, "invalid_request", "missing bearer token")
		return domain.Principal{}, false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.cfg.Secret), nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !token.Valid {
		unauth(c, "invalid_token", "invalid jwt")
		return domain.Principal{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		unauth(c, "invalid_token", "claims parsing error")
		return domain.Principal{}, false
	}
	if claims["iss"] != a.cfg.Issuer || !audienceMatches(claims, a.cfg.Audience) {
		unauth(c, "invalid_token", "iss/aud mismatch")
		return domain.Principal{}, false
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	p := domain.Principal{UserID: sub, Role: domain.Role(role)}
	if p.UserID == "" || !p.Role.Valid() {
		unauth(c, "invalid_token", "missing subject or role")
		return domain.Principal{}, false
	}
	return p, true
}

// bearer reads the token from the Authorization header, x-auth-token,
// or the token query parameter used by websocket clients.
func bearer(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if t := c.GetHeader("x-auth-token"); t != "" {
		return t
	}
	return c.Query("token")
}

func audienceMatches(claims jwt.MapClaims, want string) bool {
	aud, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// SignToken issues an HS256 token for p. Used by tooling and tests.
func SignToken(cfg AuthConfig, p domain.Principal, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  p.UserID,
		"role": string(p.Role),
		"iss":  cfg.Issuer,
		"aud":  cfg.Audience,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func setPrincipal(c *gin.Context, p domain.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller stored by Require or RequireAny.
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

func unauth(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "error_description": desc})
}

func forbidden(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": code, "error_description": desc})
}
