package crypto

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// challengeMaxSkew bounds how far a signed challenge timestamp may drift from
// the server clock in either direction.
const challengeMaxSkew = 5 * time.Minute

// ChallengeMessage builds the plain-text message a holder signs to prove
// control of their address. The timestamp is a Unix epoch in seconds.
func ChallengeMessage(address common.Address, unixTS int64) string {
	return fmt.Sprintf("stakevault auth %s %d", strings.ToLower(address.Hex()), unixTS)
}

// RecoverSigner recovers the address that produced an EIP-191 personal-sign
// signature over message. The signature is hex-encoded, 65 bytes, with the
// final recovery byte in either the 0/1 or 27/28 convention.
func RecoverSigner(message string, signatureHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}

	// Normalise the recovery byte.
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}

	digest := personalHash(message)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover pubkey: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyChallenge validates a holder's auth headers: the claimed address, the
// challenge timestamp, and the personal-sign signature over the challenge
// message. It returns the recovered holder address.
func VerifyChallenge(claimedAddress, timestamp, signatureHex string, now time.Time) (common.Address, error) {
	addr := common.HexToAddress(claimedAddress)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("crypto: empty or zero holder address")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: parse challenge timestamp: %w", err)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < -challengeMaxSkew || skew > challengeMaxSkew {
		return common.Address{}, fmt.Errorf("crypto: challenge timestamp outside allowed window")
	}

	recovered, err := RecoverSigner(ChallengeMessage(addr, ts), signatureHex)
	if err != nil {
		return common.Address{}, err
	}
	if recovered != addr {
		return common.Address{}, fmt.Errorf("crypto: signature does not match claimed address")
	}
	return recovered, nil
}

// SignChallenge produces a personal-sign signature over the challenge message
// with the given hex key. Used by tests and the CLI, mirroring what wallet
// frontends do with personal_sign.
func SignChallenge(privateKeyHex string, address common.Address, unixTS int64) (string, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid private key: %w", err)
	}

	digest := personalHash(ChallengeMessage(address, unixTS))
	sig, err := ethcrypto.Sign(digest, pk)
	if err != nil {
		return "", fmt.Errorf("crypto: sign challenge: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// personalHash applies the EIP-191 personal-sign prefix before hashing.
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}
