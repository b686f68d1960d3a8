package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewardTiers(t *testing.T) {
	amount := big.NewInt(1000)

	assert.Equal(t, "50", Reward(90, amount).String())
	assert.Equal(t, "10", Reward(60, amount).String())

	// 1000 * 5 / 10000 truncates to zero.
	assert.Equal(t, "0", Reward(30, amount).String())
	assert.Equal(t, "5", Reward(30, big.NewInt(10000)).String())
}

func TestRewardTruncates(t *testing.T) {
	// 199 * 500 / 10000 = 9.95, truncated to 9.
	assert.Equal(t, "9", Reward(90, big.NewInt(199)).String())
}

func TestRewardUnknownTier(t *testing.T) {
	assert.Equal(t, "0", Reward(45, big.NewInt(1000)).String())
	assert.Equal(t, "0", Reward(0, big.NewInt(1000)).String())
}

func TestRewardLargeAmount(t *testing.T) {
	// 10^24 wei, well past uint64 range.
	amount, ok := new(big.Int).SetString("1000000000000000000000000", 10)
	assert.True(t, ok)
	assert.Equal(t, "50000000000000000000000", Reward(90, amount).String())
}
