package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/crypto"
)

func operatorMux(auth *crypto.HMACAuth) http.Handler {
	var ok http.HandlerFunc = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	return Operator(auth)(ok)
}

func operatorRequest(auth *crypto.HMACAuth, method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	for k, v := range auth.Headers(method, path, body) {
		req.Header.Set(k, v)
	}
	return req
}

func TestOperatorAcceptsSignedRequest(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "op-1", Secret: "secret"}
	h := operatorMux(auth)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, operatorRequest(auth, http.MethodPost, "/api/operator/archive", `{"before":"2026-06-01T00:00:00Z"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOperatorDisabledWithoutCredentials(t *testing.T) {
	h := operatorMux(nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operator/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}

func TestOperatorRejectsMissingHeaders(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "op-1", Secret: "secret"}
	h := operatorMux(auth)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operator/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperatorRejectsWrongKeyOrSignature(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "op-1", Secret: "secret"}
	h := operatorMux(auth)

	req := operatorRequest(auth, http.MethodGet, "/api/operator/audit", "")
	req.Header.Set("X-Vault-Key", "op-2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signed by a party with the wrong secret.
	imposter := &crypto.HMACAuth{Key: "op-1", Secret: "guess"}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, operatorRequest(imposter, http.MethodGet, "/api/operator/audit", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperatorRejectsStaleTimestamp(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "op-1", Secret: "secret"}
	h := operatorMux(auth)

	old := time.Now().Add(-10 * time.Minute).Unix()
	req := httptest.NewRequest(http.MethodGet, "/api/operator/audit", nil)
	for k, v := range auth.HeadersAt(http.MethodGet, "/api/operator/audit", "", old) {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "stale")
}

func TestOperatorRejectsTamperedBody(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "op-1", Secret: "secret"}
	h := operatorMux(auth)

	req := httptest.NewRequest(http.MethodPost, "/api/operator/archive", bytes.NewReader([]byte(`{"before":"tampered"}`)))
	ts := time.Now().Unix()
	for k, v := range auth.HeadersAt(http.MethodPost, "/api/operator/archive", `{"before":"original"}`, ts) {
		req.Header.Set(k, v)
	}
	require.Equal(t, strconv.FormatInt(ts, 10), req.Header.Get("X-Vault-Timestamp"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
