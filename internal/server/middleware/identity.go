package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/crypto"
)

// holderContextKey is the context key under which the authenticated holder
// address is stored.
type holderContextKey struct{}

// Holder returns middleware that authenticates the calling holder from a
// personal-sign challenge carried in three headers: X-Holder-Address,
// X-Holder-Timestamp, and X-Holder-Signature. The signature must recover to
// the claimed address; on success the address is attached to the request
// context for handlers to read via HolderFrom.
func Holder() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := r.Header.Get("X-Holder-Address")
			ts := r.Header.Get("X-Holder-Timestamp")
			sig := r.Header.Get("X-Holder-Signature")
			if addr == "" || ts == "" || sig == "" {
				writeUnauthorized(w, "missing holder credentials")
				return
			}

			holder, err := crypto.VerifyChallenge(addr, ts, sig, time.Now().UTC())
			if err != nil {
				writeUnauthorized(w, "holder verification failed")
				return
			}

			ctx := context.WithValue(r.Context(), holderContextKey{}, holder)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HolderFrom returns the authenticated holder address attached by the Holder
// middleware, or false when the request was not holder-authenticated.
func HolderFrom(ctx context.Context) (common.Address, bool) {
	holder, ok := ctx.Value(holderContextKey{}).(common.Address)
	return holder, ok
}
