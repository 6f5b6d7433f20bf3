// Package middleware provides HTTP middleware for the RPC endpoint.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
	maxTimeSkew     = 60 // seconds
)

// AuthMiddleware provides HMAC-based transport authentication. The signature
// covers the timestamp concatenated with the request body.
type AuthMiddleware struct {
	secret string
}

// NewAuthMiddleware creates a new AuthMiddleware. An empty secret disables
// authentication and Wrap becomes a no-op.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// Wrap wraps an http.Handler with authentication.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m.secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timestampStr := r.Header.Get(timestampHeader)
		if timestampStr == "" {
			http.Error(w, "Missing timestamp header", http.StatusUnauthorized)
			return
		}
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid timestamp format", http.StatusUnauthorized)
			return
		}
		if time.Now().Unix()-timestamp > maxTimeSkew {
			http.Error(w, "Timestamp expired", http.StatusUnauthorized)
			return
		}

		requestSignature := r.Header.Get(signatureHeader)
		if requestSignature == "" {
			http.Error(w, "Missing signature header", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusInternalServerError)
			return
		}
		// Restore the body so the next handler can read it
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		mac := hmac.New(sha256.New, []byte(m.secret))
		mac.Write([]byte(timestampStr))
		mac.Write(body)
		expectedSignature := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(requestSignature), []byte(expectedSignature)) {
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
