package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevault/internal/chain"
	vcrypto "github.com/alanyoungcy/stakevault/internal/crypto"
	"github.com/alanyoungcy/stakevault/internal/domain"
)

// TokenVault moves an ERC-20 token. Pull reads the holder's balance and the
// allowance granted to custody and rejects with the matching error before
// submitting transferFrom; Push is a direct transfer from the custody
// account. Token mint, burn, decimals, and supply are opaque here.
type TokenVault struct {
	client *chain.Client
	token  *chain.ERC20
	signer *vcrypto.TxSigner
	logger *slog.Logger
}

// NewTokenVault creates a TokenVault for the token contract at tokenAddr.
func NewTokenVault(client *chain.Client, tokenAddr common.Address, signer *vcrypto.TxSigner, logger *slog.Logger) (*TokenVault, error) {
	token, err := chain.NewERC20(client, tokenAddr)
	if err != nil {
		return nil, err
	}
	return &TokenVault{
		client: client,
		token:  token,
		signer: signer,
		logger: logger.With(slog.String("component", "token_vault")),
	}, nil
}

// Kind reports the ERC-20 variant.
func (v *TokenVault) Kind() domain.AssetKind {
	return domain.AssetToken
}

// CustodyAddress returns the custody account.
func (v *TokenVault) CustodyAddress() common.Address {
	return v.signer.Address()
}

// TokenAddress returns the bound token contract.
func (v *TokenVault) TokenAddress() common.Address {
	return v.token.Address()
}

// BalanceOf returns the account's token balance.
func (v *TokenVault) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return v.token.BalanceOf(ctx, account)
}

// Allowance returns what the owner has approved custody to pull.
func (v *TokenVault) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return v.token.Allowance(ctx, owner, v.signer.Address())
}

// Pull checks the holder's balance, then the allowance, then executes the
// authorized transferFrom into custody. Each precondition failure surfaces
// its own error before any transfer is attempted.
func (v *TokenVault) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	balance, err := v.token.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("vault: token balance %s < %s: %w", balance, amount, domain.ErrInsufficientFunds)
	}

	allowance, err := v.token.Allowance(ctx, from, v.signer.Address())
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("vault: allowance %s < %s: %w", allowance, amount, domain.ErrInsufficientAllowance)
	}

	tx, err := v.token.TransferFromTx(ctx, v.signer.Address(), from, v.signer.Address(), amount)
	if err != nil {
		return err
	}
	signed, err := v.signer.SignTx(tx)
	if err != nil {
		return err
	}
	if _, err := v.client.SendAndWait(ctx, signed); err != nil {
		return err
	}

	v.logger.InfoContext(ctx, "token pulled into custody",
		slog.String("holder", from.Hex()),
		slog.String("amount", amount.String()),
		slog.String("tx", signed.Hash().Hex()),
	)
	return nil
}

// Push transfers amount from custody to the recipient.
func (v *TokenVault) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	tx, err := v.token.TransferTx(ctx, v.signer.Address(), to, amount)
	if err != nil {
		return err
	}
	signed, err := v.signer.SignTx(tx)
	if err != nil {
		return err
	}
	if _, err := v.client.SendAndWait(ctx, signed); err != nil {
		return err
	}

	v.logger.InfoContext(ctx, "token payout sent",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
		slog.String("tx", signed.Hash().Hex()),
	)
	return nil
}

// Compile-time interface check.
var _ domain.AssetVault = (*TokenVault)(nil)
