package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stakevault/internal/crypto"
	"github.com/alanyoungcy/stakevault/internal/server"
	"github.com/alanyoungcy/stakevault/internal/server/handler"
	"github.com/alanyoungcy/stakevault/internal/server/ws"
	"github.com/alanyoungcy/stakevault/internal/service"
)

// ServeMode starts the full API: holder endpoints, operator endpoints, the
// WebSocket hub, the maturity notifier, and the archive scheduler.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return a.run(ctx, deps, false)
}

// MonitorMode starts a read-only API: the mutating stake endpoints reject
// requests, but listing, balances, the event stream, and the maturity
// notifier stay live.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.run(ctx, deps, true)
}

func (a *App) run(ctx context.Context, deps *Dependencies, readOnly bool) error {
	g, ctx := errgroup.WithContext(ctx)

	stakeSvc := service.NewStakeService(
		deps.Engine,
		deps.LockManager,
		deps.BalanceCache,
		deps.SignalBus,
		deps.AuditStore,
		deps.Notifier,
		a.logger,
	)

	// Maturity notifier: informational only, safe in every mode.
	if a.cfg.Maturity.Enabled {
		notifier := service.NewMaturityNotifier(
			deps.LedgerStore,
			deps.SignalBus,
			deps.Notifier,
			a.cfg.Maturity.PollInterval.Duration,
			a.logger,
		)
		g.Go(func() error {
			return notifier.Run(ctx)
		})
	}

	// Archive scheduler: only with cold storage wired, and never in
	// monitor mode.
	if !readOnly && a.cfg.Archive.Enabled && deps.Archiver != nil {
		scheduler := service.NewArchiveScheduler(
			deps.Archiver,
			a.cfg.Archive.Interval.Duration,
			time.Duration(a.cfg.Archive.RetentionDays)*24*time.Hour,
			a.logger,
		)
		g.Go(func() error {
			return scheduler.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, stakeSvc, readOnly)
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	stakeSvc *service.StakeService,
	readOnly bool,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var deposits handler.DepositCrediter
	if deps.NativeVault != nil {
		deposits = deps.NativeVault
	}

	var operator *crypto.HMACAuth
	if a.cfg.Server.OperatorKey != "" && a.cfg.Server.OperatorSecret != "" {
		operator = &crypto.HMACAuth{
			Key:    a.cfg.Server.OperatorKey,
			Secret: a.cfg.Server.OperatorSecret,
		}
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			Operator:    operator,
			RateLimiter: deps.RateLimiter,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Stakes:   handler.NewStakeHandler(stakeSvc, deposits, readOnly, a.logger),
			Vault:    handler.NewVaultHandler(deps.Vault, deps.ChainID, a.cfg.Mode, a.logger),
			Operator: handler.NewOperatorHandler(deps.AuditStore, deps.Archiver, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
