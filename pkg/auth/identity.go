package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	// Whitelist is the static email allow-list; membership checks are
	// case-insensitive.
	Whitelist map[string]struct{}
	// SigningKeys verify X-Auth-Signature (hex HMAC-SHA256 over the email).
	SigningKeys map[string]struct{}
	// AllowUnsigned accepts the email header without a signature. Only safe
	// behind a trusted identity proxy that strips client-supplied headers.
	AllowUnsigned bool
	AdminKeys     map[string]struct{}
}

type ctxEmailKey struct{}

// EmailFromContext returns the verified caller email or empty string.
func EmailFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxEmailKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func withEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ctxEmailKey{}, email)
}

// whitelisted reports whether the email is on the allow-list.
func (c SecConfig) whitelisted(email string) bool {
	_, ok := c.Whitelist[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// signatureValid checks the hex HMAC-SHA256 of the email against every
// configured signing key.
func (c SecConfig) signatureValid(email, sig string) bool {
	for k := range c.SigningKeys {
		mac := hmac.New(sha256.New, []byte(k))
		mac.Write([]byte(email))
		expected := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

// NormalizeWhitelist lowercases and trims a configured email list into the
// membership set used by the gateway.
func NormalizeWhitelist(emails []string) map[string]struct{} {
	out := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if s := strings.ToLower(strings.TrimSpace(e)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
