package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/server/middleware"
)

// StakeService defines the methods the stake handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type StakeService interface {
	Stake(ctx context.Context, holder common.Address, amount *big.Int, durationDays int) (*domain.Stake, error)
	Liquidate(ctx context.Context, holder common.Address, stakeID uint64) (*domain.Stake, *big.Int, error)
	Balance(ctx context.Context, holder common.Address) (*big.Int, error)
	ListStakes(ctx context.Context, holder common.Address) ([]*domain.Stake, error)
	GetStake(ctx context.Context, holder common.Address, stakeID uint64) (*domain.Stake, error)
}

// DepositCrediter verifies an on-chain deposit transaction and credits the
// sender so a subsequent stake can consume it. Only the native vault
// implements this; for other vault kinds the field is nil and deposit_tx is
// rejected.
type DepositCrediter interface {
	Credit(ctx context.Context, depositTx common.Hash) (common.Address, *big.Int, error)
}

// StakeHandler serves the stake lifecycle endpoints.
type StakeHandler struct {
	stakes   StakeService
	deposits DepositCrediter
	readOnly bool
	logger   *slog.Logger
}

// NewStakeHandler creates a StakeHandler. deposits may be nil when the vault
// kind needs no deposit verification; readOnly disables the mutating
// endpoints.
func NewStakeHandler(stakes StakeService, deposits DepositCrediter, readOnly bool, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes:   stakes,
		deposits: deposits,
		readOnly: readOnly,
		logger:   logger,
	}
}

// stakeResponse is the JSON shape of a single stake. Amounts travel as
// decimal strings since they exceed float64 precision.
type stakeResponse struct {
	ID           uint64    `json:"id"`
	Holder       string    `json:"holder"`
	Amount       string    `json:"amount"`
	Reward       string    `json:"reward"`
	DurationDays int       `json:"duration_days"`
	CreatedAt    time.Time `json:"created_at"`
	MaturesAt    time.Time `json:"matures_at"`
	Liquidated   bool      `json:"liquidated"`
}

func toStakeResponse(s *domain.Stake) stakeResponse {
	return stakeResponse{
		ID:           s.ID,
		Holder:       s.Owner.Hex(),
		Amount:       s.Amount.String(),
		Reward:       s.Reward.String(),
		DurationDays: s.DurationDays,
		CreatedAt:    s.CreatedAt,
		MaturesAt:    s.MaturesAt(),
		Liquidated:   s.Liquidated,
	}
}

// createStakeRequest is the body of POST /api/stakes.
type createStakeRequest struct {
	Amount       string `json:"amount"`
	DurationDays int    `json:"duration_days"`
	DepositTx    string `json:"deposit_tx,omitempty"`
}

// CreateStake opens a new stake for the authenticated holder.
// POST /api/stakes
func (h *StakeHandler) CreateStake(w http.ResponseWriter, r *http.Request) {
	holder, ok := middleware.HolderFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "holder identity required")
		return
	}
	if h.readOnly {
		writeError(w, http.StatusForbidden, "server is in monitor mode")
		return
	}

	var req createStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a decimal integer string")
		return
	}

	if req.DepositTx != "" {
		if h.deposits == nil {
			writeError(w, http.StatusBadRequest, "deposit_tx not supported for this vault")
			return
		}
		from, credited, err := h.deposits.Credit(r.Context(), common.HexToHash(req.DepositTx))
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: deposit verification failed",
				slog.String("deposit_tx", req.DepositTx),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, domain.ErrDepositConsumed) {
				writeError(w, http.StatusConflict, "deposit already credited")
				return
			}
			writeError(w, http.StatusUnprocessableEntity, "deposit verification failed")
			return
		}
		if from != holder {
			writeError(w, http.StatusUnprocessableEntity, "deposit sender does not match holder")
			return
		}
		if credited.Cmp(amount) < 0 {
			writeError(w, http.StatusUnprocessableEntity, "deposit smaller than stake amount")
			return
		}
	}

	stake, err := h.stakes.Stake(r.Context(), holder, amount, req.DurationDays)
	if err != nil {
		h.writeStakeError(w, r, "create stake", err)
		return
	}

	writeJSON(w, http.StatusCreated, toStakeResponse(stake))
}

// liquidateResponse is the body of a successful liquidation.
type liquidateResponse struct {
	Stake  stakeResponse `json:"stake"`
	Payout string        `json:"payout"`
	Early  bool          `json:"early"`
}

// Liquidate closes the addressed stake and pays the holder.
// POST /api/stakes/{id}/liquidate
func (h *StakeHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	holder, ok := middleware.HolderFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "holder identity required")
		return
	}
	if h.readOnly {
		writeError(w, http.StatusForbidden, "server is in monitor mode")
		return
	}

	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "stake id must be a positive integer")
		return
	}

	stake, payout, err := h.stakes.Liquidate(r.Context(), holder, id)
	if err != nil {
		h.writeStakeError(w, r, "liquidate stake", err)
		return
	}

	writeJSON(w, http.StatusOK, liquidateResponse{
		Stake:  toStakeResponse(stake),
		Payout: payout.String(),
		Early:  !stake.Mature(time.Now().UTC()),
	})
}

// listStakesResponse wraps the list endpoint output.
type listStakesResponse struct {
	Stakes []stakeResponse `json:"stakes"`
	Total  int             `json:"total"`
}

// ListStakes returns the authenticated holder's full stake history.
// GET /api/stakes
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	holder, ok := middleware.HolderFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "holder identity required")
		return
	}

	stakes, err := h.stakes.ListStakes(r.Context(), holder)
	if err != nil {
		h.writeStakeError(w, r, "list stakes", err)
		return
	}

	out := make([]stakeResponse, 0, len(stakes))
	for _, s := range stakes {
		out = append(out, toStakeResponse(s))
	}
	writeJSON(w, http.StatusOK, listStakesResponse{Stakes: out, Total: len(out)})
}

// GetStake returns a single stake by its 1-based id.
// GET /api/stakes/{id}
func (h *StakeHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	holder, ok := middleware.HolderFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "holder identity required")
		return
	}

	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "stake id must be a positive integer")
		return
	}

	stake, err := h.stakes.GetStake(r.Context(), holder, id)
	if err != nil {
		h.writeStakeError(w, r, "get stake", err)
		return
	}
	writeJSON(w, http.StatusOK, toStakeResponse(stake))
}

// GetBalance returns the holder's aggregate active balance.
// GET /api/balance
func (h *StakeHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	holder, ok := middleware.HolderFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "holder identity required")
		return
	}

	balance, err := h.stakes.Balance(r.Context(), holder)
	if err != nil {
		h.writeStakeError(w, r, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"holder":  holder.Hex(),
		"balance": balance.String(),
	})
}

// writeStakeError maps domain errors to HTTP statuses. Unclassified errors
// are logged and surfaced as 500s without detail.
func (h *StakeHandler) writeStakeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidStakeID):
		writeError(w, http.StatusNotFound, "no stake with that id")
	case errors.Is(err, domain.ErrAlreadyLiquidated):
		writeError(w, http.StatusConflict, "stake already liquidated")
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientAllowance):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "holder has a mutation in flight")
	case errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, "asset transfer failed, ledger unchanged")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
