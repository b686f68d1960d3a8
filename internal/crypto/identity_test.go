package crypto

import (
	"strconv"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Throwaway key used only in tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestVerifyChallengeRoundTrip(t *testing.T) {
	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	now := time.Unix(1767225600, 0)
	sig, err := SignChallenge(testKeyHex, addr, now.Unix())
	require.NoError(t, err)

	recovered, err := VerifyChallenge(addr.Hex(), strconv.FormatInt(now.Unix(), 10), sig, now)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestVerifyChallengeRejectsWrongAddress(t *testing.T) {
	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	now := time.Unix(1767225600, 0)
	sig, err := SignChallenge(testKeyHex, addr, now.Unix())
	require.NoError(t, err)

	other := "0x2222222222222222222222222222222222222222"
	_, err = VerifyChallenge(other, strconv.FormatInt(now.Unix(), 10), sig, now)
	assert.Error(t, err)
}

func TestVerifyChallengeRejectsStaleTimestamp(t *testing.T) {
	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	signed := time.Unix(1767225600, 0)
	sig, err := SignChallenge(testKeyHex, addr, signed.Unix())
	require.NoError(t, err)

	// Just inside the window passes, just outside fails.
	_, err = VerifyChallenge(addr.Hex(), strconv.FormatInt(signed.Unix(), 10), sig, signed.Add(4*time.Minute))
	assert.NoError(t, err)

	_, err = VerifyChallenge(addr.Hex(), strconv.FormatInt(signed.Unix(), 10), sig, signed.Add(6*time.Minute))
	assert.ErrorContains(t, err, "timestamp")

	_, err = VerifyChallenge(addr.Hex(), strconv.FormatInt(signed.Unix(), 10), sig, signed.Add(-6*time.Minute))
	assert.ErrorContains(t, err, "timestamp")
}

func TestVerifyChallengeRejectsGarbage(t *testing.T) {
	now := time.Unix(1767225600, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	_, err := VerifyChallenge("", ts, "0xdead", now)
	assert.Error(t, err)

	_, err = VerifyChallenge("0x1111111111111111111111111111111111111111", "not-a-number", "0xdead", now)
	assert.Error(t, err)

	_, err = VerifyChallenge("0x1111111111111111111111111111111111111111", ts, "0xdead", now)
	assert.Error(t, err)
}

func TestRecoverSignerNormalizesRecoveryByte(t *testing.T) {
	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	msg := ChallengeMessage(addr, 1767225600)
	sig, err := SignChallenge(testKeyHex, addr, 1767225600)
	require.NoError(t, err)

	// Shift the recovery byte into the 27/28 convention wallets use.
	legacy := shiftRecoveryByte(t, sig)

	recovered, err := RecoverSigner(msg, legacy)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func shiftRecoveryByte(t *testing.T, sigHex string) string {
	t.Helper()
	require.Len(t, sigHex, 2+130)
	last := sigHex[len(sigHex)-2:]
	switch last {
	case "00":
		return sigHex[:len(sigHex)-2] + "1b"
	case "01":
		return sigHex[:len(sigHex)-2] + "1c"
	default:
		t.Fatalf("unexpected recovery byte %q", last)
		return ""
	}
}
