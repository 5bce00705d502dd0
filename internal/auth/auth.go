// Package auth validates the HMAC-signed bearer tokens issued by the
// platform identity service and exposes the tenant and scope claims the
// plan sync handlers authorize against.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the verification parameters shared with the token issuer.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the normalized identity attached to an authenticated request.
type Claims struct {
	Subject   string
	TenantID  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	// ErrMissingToken is returned when no bearer token accompanies the request.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps any parse or validation failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Parse verifies the token signature, issuer, and expiry, and extracts the
// subject, tenant, and scope claims. Tokens without a subject or tenant are
// rejected even when the signature checks out.
func Parse(raw string, cfg Config) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	payload := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, payload,
		func(*jwt.Token) (interface{}, error) { return []byte(cfg.Secret), nil },
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claimsFromPayload(payload)
}

func claimsFromPayload(payload jwt.MapClaims) (*Claims, error) {
	subject, subErr := payload.GetSubject()
	tenantID, _ := payload["tenant_id"].(string)
	if subErr != nil || subject == "" || tenantID == "" {
		return nil, ErrInvalidToken
	}

	exp, err := payload.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:   subject,
		TenantID:  tenantID,
		Scopes:    scopeSet(payload["scopes"]),
		ExpiresAt: exp.Time,
	}, nil
}

// scopeSet accepts the scope claim as a JSON array, a string slice, or a
// space-separated string, matching the shapes different issuers emit.
func scopeSet(claim interface{}) map[string]struct{} {
	set := make(map[string]struct{})
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}

	switch v := claim.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case string:
		for _, s := range strings.Fields(v) {
			add(s)
		}
	}
	return set
}

// HasScope reports whether the claim set grants the given scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
