// Package auth provides API key verification for the HTTP surface.
package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// Keyguard validates bearer tokens against a bcrypt hash of the configured
// API key. The plain key never stays resident after construction.
type Keyguard struct {
	hash []byte
}

// NewKeyguard hashes the configured key. An empty key returns a nil guard,
// which disables auth.
func NewKeyguard(apiKey string) (*Keyguard, error) {
	if apiKey == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth.NewKeyguard: %w", err)
	}
	return &Keyguard{hash: hash}, nil
}

// Check reports whether the presented key matches.
func (g *Keyguard) Check(presented string) bool {
	return bcrypt.CompareHashAndPassword(g.hash, []byte(presented)) == nil
}

// Require is middleware that validates a Bearer token from the
// Authorization header. A nil guard passes every request through.
func (g *Keyguard) Require(next http.Handler) http.Handler {
	if g == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		auth := r.Header.Get("Authorization")
		if len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
		if token == "" || !g.Check(token) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid API key"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
