package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/stakevault/internal/blob/s3"
	"github.com/alanyoungcy/stakevault/internal/cache/redis"
	"github.com/alanyoungcy/stakevault/internal/chain"
	"github.com/alanyoungcy/stakevault/internal/config"
	"github.com/alanyoungcy/stakevault/internal/crypto"
	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/ledger"
	"github.com/alanyoungcy/stakevault/internal/notify"
	"github.com/alanyoungcy/stakevault/internal/store/postgres"
	"github.com/alanyoungcy/stakevault/internal/vault"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Ledger
	LedgerStore domain.LedgerStore
	AuditStore  domain.AuditStore
	Vault       domain.AssetVault
	Engine      *ledger.Engine

	// Native vaults verify deposits before pulling; nil for other kinds.
	NativeVault *vault.NativeVault

	// ChainID is zero for the memory vault.
	ChainID uint64

	// Caches
	BalanceCache domain.BalanceCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger store ---
	var (
		audit        domain.AuditStore
		depositStore domain.DepositStore
	)
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		audit = postgres.NewAuditStore(pool)
		depositStore = postgres.NewDepositStore(pool)
	case "memory":
		deps.LedgerStore = ledger.NewMemoryStore()
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown ledger backend %q", cfg.Ledger.Backend)
	}
	deps.AuditStore = audit

	// --- Asset vault ---
	vlt, native, chainID, vaultClose, err := wireVault(ctx, cfg, depositStore, audit, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if vaultClose != nil {
		closers = append(closers, vaultClose)
	}
	deps.Vault = vlt
	deps.NativeVault = native
	deps.ChainID = chainID

	deps.Engine = ledger.New(deps.LedgerStore, deps.Vault, logger)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	cacheTTL := time.Duration(0)
	if cfg.Redis.CacheTTLMinutes > 0 {
		cacheTTL = time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
	}

	deps.BalanceCache = redis.NewBalanceCache(redisClient, cacheTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.LedgerStore, deps.AuditStore)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireVault builds the asset vault selected in config. For the chain-backed
// kinds it dials the RPC endpoint and loads the custody signing key; the
// second return value is non-nil only for the native kind. The deposit and
// audit stores may be nil when the ledger backend has no durable storage.
func wireVault(ctx context.Context, cfg *config.Config, depositStore domain.DepositStore, audit domain.AuditStore, logger *slog.Logger) (domain.AssetVault, *vault.NativeVault, uint64, func(), error) {
	switch strings.ToLower(cfg.Vault.Kind) {
	case "memory":
		custody := common.HexToAddress(cfg.Vault.CustodyAddress)
		return vault.NewMemoryVault(custody), nil, 0, nil, nil

	case "native", "erc20":
		client, err := chain.Dial(ctx, chain.ClientConfig{
			RPCURL:  cfg.Chain.RPCURL,
			ChainID: int64(cfg.Chain.ChainID),
		})
		if err != nil {
			return nil, nil, 0, nil, fmt.Errorf("wire: chain dial: %w", err)
		}

		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			client.Close()
			return nil, nil, 0, nil, fmt.Errorf("wire: load custody key: %w", err)
		}
		signer, err := crypto.NewTxSigner(keyHex, client.ChainID())
		if err != nil {
			client.Close()
			return nil, nil, 0, nil, fmt.Errorf("wire: custody signer: %w", err)
		}

		if strings.ToLower(cfg.Vault.Kind) == "native" {
			nv := vault.NewNativeVault(client, signer, depositStore, audit, logger)
			return nv, nv, cfg.Chain.ChainID, client.Close, nil
		}

		tv, err := vault.NewTokenVault(client, common.HexToAddress(cfg.Vault.TokenAddress), signer, logger)
		if err != nil {
			client.Close()
			return nil, nil, 0, nil, fmt.Errorf("wire: token vault: %w", err)
		}
		return tv, nil, cfg.Chain.ChainID, client.Close, nil

	default:
		return nil, nil, 0, nil, fmt.Errorf("wire: unknown vault kind %q", cfg.Vault.Kind)
	}
}
