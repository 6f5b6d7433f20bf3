package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledWhenNoSecret(t *testing.T) {
	h := NewAuthMiddleware("").Wrap(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthValidSignature(t *testing.T) {
	const secret = "topsecret"
	body := `{"jsonrpc":"2.0","method":"keyring_listAccounts"}`
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set(timestampHeader, timestamp)
	req.Header.Set(signatureHeader, sign(secret, timestamp, body))

	rec := httptest.NewRecorder()
	NewAuthMiddleware(secret).Wrap(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejections(t *testing.T) {
	const secret = "topsecret"
	h := NewAuthMiddleware(secret).Wrap(okHandler())
	now := fmt.Sprintf("%d", time.Now().Unix())

	t.Run("missing timestamp", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired timestamp", func(t *testing.T) {
		old := fmt.Sprintf("%d", time.Now().Unix()-300)
		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("{}"))
		req.Header.Set(timestampHeader, old)
		req.Header.Set(signatureHeader, sign(secret, old, "{}"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("{}"))
		req.Header.Set(timestampHeader, now)
		req.Header.Set(signatureHeader, "deadbeef")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("body tamper", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"a":1}`))
		req.Header.Set(timestampHeader, now)
		req.Header.Set(signatureHeader, sign(secret, now, `{"a":2}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
