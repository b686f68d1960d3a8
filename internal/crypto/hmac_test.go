package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACHeadersRoundTrip(t *testing.T) {
	auth := &HMACAuth{Key: "op-1", Secret: "topsecret"}

	headers := auth.HeadersAt("POST", "/api/operator/archive", `{"before":"2026-01-01T00:00:00Z"}`, 1767225600)
	assert.Equal(t, "op-1", headers["X-Vault-Key"])
	assert.Equal(t, "1767225600", headers["X-Vault-Timestamp"])

	ok := auth.Verify("POST", "/api/operator/archive", `{"before":"2026-01-01T00:00:00Z"}`,
		headers["X-Vault-Timestamp"], headers["X-Vault-Signature"])
	assert.True(t, ok)
}

func TestHMACVerifyRejectsTampering(t *testing.T) {
	auth := &HMACAuth{Key: "op-1", Secret: "topsecret"}
	headers := auth.HeadersAt("GET", "/api/operator/audit", "", 1767225600)
	sig := headers["X-Vault-Signature"]

	assert.False(t, auth.Verify("POST", "/api/operator/audit", "", "1767225600", sig))
	assert.False(t, auth.Verify("GET", "/api/operator/archive", "", "1767225600", sig))
	assert.False(t, auth.Verify("GET", "/api/operator/audit", "x", "1767225600", sig))
	assert.False(t, auth.Verify("GET", "/api/operator/audit", "", "1767225601", sig))

	other := &HMACAuth{Key: "op-1", Secret: "different"}
	assert.False(t, other.Verify("GET", "/api/operator/audit", "", "1767225600", sig))
}

func TestHMACStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "operator-key", Secret: "supersecretvalue"}
	s := auth.String()
	require.NotContains(t, s, "supersecretvalue")
	assert.Contains(t, s, "oper****")
	assert.Contains(t, s, "supe****")
}
