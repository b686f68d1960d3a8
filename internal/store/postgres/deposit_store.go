package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// DepositStore implements domain.DepositStore using PostgreSQL. A deposit
// transaction hash is consumed by inserting it into deposit_credits; the
// primary key makes a second insert a no-op, which surfaces as
// ErrDepositConsumed.
type DepositStore struct {
	pool *pgxpool.Pool
}

// NewDepositStore creates a new DepositStore backed by the given connection
// pool.
func NewDepositStore(pool *pgxpool.Pool) *DepositStore {
	return &DepositStore{pool: pool}
}

// Consume records the deposit transaction as credited. The insert and the
// uniqueness check are a single statement, so two concurrent callers cannot
// both consume the same hash.
func (s *DepositStore) Consume(ctx context.Context, depositTx common.Hash) error {
	const query = `INSERT INTO deposit_credits (tx_hash) VALUES ($1) ON CONFLICT (tx_hash) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, strings.ToLower(depositTx.Hex()))
	if err != nil {
		return fmt.Errorf("postgres: consume deposit %s: %w", depositTx.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: deposit %s: %w", depositTx.Hex(), domain.ErrDepositConsumed)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DepositStore = (*DepositStore)(nil)
