package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/stakevault/internal/crypto"
)

// operatorMaxSkew bounds how old an operator request signature may be.
const operatorMaxSkew = 5 * time.Minute

// Operator returns middleware that validates operator requests with a signed
// HMAC triple: X-Vault-Key, X-Vault-Timestamp, and X-Vault-Signature over
// timestamp+method+path+body. If auth is nil, operator endpoints are disabled
// and every request is rejected.
func Operator(auth *crypto.HMACAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeUnauthorized(w, "operator API disabled")
				return
			}

			key := r.Header.Get("X-Vault-Key")
			ts := r.Header.Get("X-Vault-Timestamp")
			sig := r.Header.Get("X-Vault-Signature")
			if key == "" || ts == "" || sig == "" {
				writeUnauthorized(w, "missing operator credentials")
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(key), []byte(auth.Key)) != 1 {
				writeUnauthorized(w, "unknown operator key")
				return
			}

			unixTS, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				writeUnauthorized(w, "malformed timestamp")
				return
			}
			skew := time.Since(time.Unix(unixTS, 0))
			if skew < -operatorMaxSkew || skew > operatorMaxSkew {
				writeUnauthorized(w, "stale operator signature")
				return
			}

			// The body participates in the signature, so buffer and restore it.
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !auth.Verify(r.Method, r.URL.Path, string(body), ts, sig) {
				writeUnauthorized(w, "invalid operator signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
