package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Amounts are
// stored as NUMERIC(78,0), wide enough for any uint256, and travel through
// the driver as decimal strings.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func holderKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

const stakeColumns = `holder, id, amount::text, reward::text, duration_days, created_at, liquidated`

// CreateStake appends a stake and credits the holder's aggregate balance in
// one transaction. The stake id comes from the holder's monotonically
// increasing stake_count, so ids are 1-based and never reused.
func (s *LedgerStore) CreateStake(ctx context.Context, stake *domain.Stake) (*domain.Stake, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin create stake: %w", err)
	}
	defer tx.Rollback(ctx)

	holder := holderKey(stake.Owner)

	const upsert = `
		INSERT INTO holder_ledger (holder, balance, stake_count)
		VALUES ($1, $2::numeric, 1)
		ON CONFLICT (holder) DO UPDATE SET
			balance = holder_ledger.balance + EXCLUDED.balance,
			stake_count = holder_ledger.stake_count + 1,
			updated_at = NOW()
		RETURNING stake_count`
	var id uint64
	if err := tx.QueryRow(ctx, upsert, holder, stake.Amount.String()).Scan(&id); err != nil {
		return nil, fmt.Errorf("postgres: credit holder %s: %w", holder, err)
	}

	const insert = `
		INSERT INTO stakes (holder, id, amount, reward, duration_days, created_at, liquidated)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, FALSE)`
	if _, err := tx.Exec(ctx, insert,
		holder, id, stake.Amount.String(), stake.Reward.String(), stake.DurationDays, stake.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("postgres: insert stake %s/%d: %w", holder, id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit create stake: %w", err)
	}

	created := stake.Clone()
	created.ID = id
	created.Liquidated = false
	return created, nil
}

// Liquidate runs the close sequence inside one transaction: lock the holder
// row, debit the balance, flip the liquidated flag, and only then invoke
// settle. A settle error aborts the transaction, rolling the debit and the
// flag back together. The row lock serializes concurrent liquidations for
// the same holder, so a nested attempt observes the flipped flag and fails.
func (s *LedgerStore) Liquidate(ctx context.Context, holder common.Address, id uint64, settle domain.SettleFunc) (*domain.Stake, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin liquidate: %w", err)
	}
	defer tx.Rollback(ctx)

	hk := holderKey(holder)

	const lockLedger = `SELECT stake_count FROM holder_ledger WHERE holder = $1 FOR UPDATE`
	var count uint64
	if err := tx.QueryRow(ctx, lockLedger, hk).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidStakeID
		}
		return nil, fmt.Errorf("postgres: lock ledger %s: %w", hk, err)
	}
	if id == 0 || id > count {
		return nil, domain.ErrInvalidStakeID
	}

	const selectStake = `SELECT ` + stakeColumns + ` FROM stakes WHERE holder = $1 AND id = $2 FOR UPDATE`
	stake, err := scanStake(tx.QueryRow(ctx, selectStake, hk, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidStakeID
		}
		return nil, fmt.Errorf("postgres: load stake %s/%d: %w", hk, id, err)
	}
	if stake.Liquidated {
		return nil, domain.ErrAlreadyLiquidated
	}

	// Debit, then flag, then transfer; commit only after settle succeeds.
	const debit = `UPDATE holder_ledger SET balance = balance - $2::numeric, updated_at = NOW() WHERE holder = $1`
	if _, err := tx.Exec(ctx, debit, hk, stake.Amount.String()); err != nil {
		return nil, fmt.Errorf("postgres: debit holder %s: %w", hk, err)
	}

	const flag = `UPDATE stakes SET liquidated = TRUE WHERE holder = $1 AND id = $2`
	if _, err := tx.Exec(ctx, flag, hk, id); err != nil {
		return nil, fmt.Errorf("postgres: flag stake %s/%d: %w", hk, id, err)
	}

	stake.Liquidated = true
	if err := settle(stake.Clone()); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit liquidate: %w", err)
	}
	return stake, nil
}

// GetStake returns the stake with the given 1-based id.
func (s *LedgerStore) GetStake(ctx context.Context, holder common.Address, id uint64) (*domain.Stake, error) {
	const query = `SELECT ` + stakeColumns + ` FROM stakes WHERE holder = $1 AND id = $2`
	stake, err := scanStake(s.pool.QueryRow(ctx, query, holderKey(holder), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidStakeID
		}
		return nil, fmt.Errorf("postgres: get stake %d: %w", id, err)
	}
	return stake, nil
}

// ListStakes returns all of the holder's stakes in id order.
func (s *LedgerStore) ListStakes(ctx context.Context, holder common.Address) ([]*domain.Stake, error) {
	const query = `SELECT ` + stakeColumns + ` FROM stakes WHERE holder = $1 ORDER BY id`
	return s.queryStakes(ctx, query, holderKey(holder))
}

// Balance returns the holder's aggregate active balance; holders with no
// ledger row have a zero balance.
func (s *LedgerStore) Balance(ctx context.Context, holder common.Address) (*big.Int, error) {
	const query = `SELECT balance::text FROM holder_ledger WHERE holder = $1`
	var raw string
	err := s.pool.QueryRow(ctx, query, holderKey(holder)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance of %s: %w", holder.Hex(), err)
	}
	return parseAmount(raw)
}

// StakeCount returns how many stakes the holder has ever created.
func (s *LedgerStore) StakeCount(ctx context.Context, holder common.Address) (uint64, error) {
	const query = `SELECT stake_count FROM holder_ledger WHERE holder = $1`
	var count uint64
	err := s.pool.QueryRow(ctx, query, holderKey(holder)).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: stake count of %s: %w", holder.Hex(), err)
	}
	return count, nil
}

// ListLiquidatedBefore returns liquidated stakes created before the cutoff.
func (s *LedgerStore) ListLiquidatedBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]*domain.Stake, error) {
	query := `SELECT ` + stakeColumns + ` FROM stakes WHERE liquidated AND created_at < $1 ORDER BY created_at, id`
	args := []any{cutoff}
	query, args = applyListOpts(query, args, opts)
	return s.queryStakes(ctx, query, args...)
}

// ListActive returns all non-liquidated stakes across holders.
func (s *LedgerStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]*domain.Stake, error) {
	query := `SELECT ` + stakeColumns + ` FROM stakes WHERE NOT liquidated ORDER BY created_at, id`
	var args []any
	query, args = applyListOpts(query, args, opts)
	return s.queryStakes(ctx, query, args...)
}

func applyListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *LedgerStore) queryStakes(ctx context.Context, query string, args ...any) ([]*domain.Stake, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query stakes: %w", err)
	}
	defer rows.Close()

	var list []*domain.Stake
	for rows.Next() {
		stake, err := scanStake(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, stake)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate stakes: %w", err)
	}
	if list == nil {
		list = []*domain.Stake{}
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStake(row rowScanner) (*domain.Stake, error) {
	var (
		holder    string
		amountRaw string
		rewardRaw string
		stake     domain.Stake
	)
	if err := row.Scan(
		&holder, &stake.ID, &amountRaw, &rewardRaw,
		&stake.DurationDays, &stake.CreatedAt, &stake.Liquidated,
	); err != nil {
		return nil, err
	}

	stake.Owner = common.HexToAddress(holder)

	var err error
	if stake.Amount, err = parseAmount(amountRaw); err != nil {
		return nil, err
	}
	if stake.Reward, err = parseAmount(rewardRaw); err != nil {
		return nil, err
	}
	return &stake, nil
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed amount %q", raw)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
