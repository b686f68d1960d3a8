package ledger

import (
	"math/big"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// Reward tier numerators over a basis of 10000: 90 days pays 5%, 60 days 1%,
// 30 days 0.05% of principal.
var rewardBps = map[int]int64{
	domain.DurationLong:   500,
	domain.DurationMedium: 100,
	domain.DurationShort:  5,
}

const rewardBasis = 10000

// Reward computes the fixed reward for a principal locked for the given tier.
// All arithmetic is integer and truncates toward zero; no rounding adjustment
// is applied. Durations outside the accepted tiers are rejected before this
// table is ever consulted, so unknown tiers yield a zero reward rather than
// an error.
func Reward(durationDays int, amount *big.Int) *big.Int {
	bps, ok := rewardBps[durationDays]
	if !ok {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, big.NewInt(rewardBasis))
}
