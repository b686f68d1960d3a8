package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// VaultHandler reports custody status.
type VaultHandler struct {
	vault   domain.AssetVault
	chainID uint64
	mode    string
	logger  *slog.Logger
}

// NewVaultHandler creates a VaultHandler. chainID is zero for the memory
// vault.
func NewVaultHandler(vault domain.AssetVault, chainID uint64, mode string, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		vault:   vault,
		chainID: chainID,
		mode:    mode,
		logger:  logger,
	}
}

// GetStatus reports the vault kind, its custody address, and the custody
// balance as seen by the vault backend.
// GET /api/vault/status
func (h *VaultHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"kind":     string(h.vault.Kind()),
		"custody":  h.vault.CustodyAddress().Hex(),
		"chain_id": h.chainID,
		"mode":     h.mode,
	}

	if balance, err := h.vault.BalanceOf(r.Context(), h.vault.CustodyAddress()); err == nil {
		resp["custody_balance"] = balance.String()
	} else {
		h.logger.WarnContext(r.Context(), "handler: custody balance lookup failed",
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, resp)
}
