package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Signal bus channels for ledger events.
const (
	ChannelStakeOpened  = "stake_opened"
	ChannelStakeClosed  = "stake_closed"
	ChannelStakeMatured = "stake_matured"
)

// StakeOpenedEvent is published when a stake is created. Amount is the
// principal locked.
type StakeOpenedEvent struct {
	Holder       common.Address `json:"holder"`
	StakeID      uint64         `json:"stake_id"`
	Amount       *big.Int       `json:"amount"`
	DurationDays int            `json:"duration_days"`
	CreatedAt    time.Time      `json:"created_at"`
}

// StakeClosedEvent is published when a stake is liquidated. Amount is always
// the principal, never including any reward paid.
type StakeClosedEvent struct {
	Holder  common.Address `json:"holder"`
	StakeID uint64         `json:"stake_id"`
	Amount  *big.Int       `json:"amount"`
	Early   bool           `json:"early"`
}

// StakeMaturedEvent is published once per stake when it reaches maturity.
// Informational only; maturity never mutates the ledger.
type StakeMaturedEvent struct {
	Holder    common.Address `json:"holder"`
	StakeID   uint64         `json:"stake_id"`
	Amount    *big.Int       `json:"amount"`
	MaturedAt time.Time      `json:"matured_at"`
}
