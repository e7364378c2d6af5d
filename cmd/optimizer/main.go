package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yield-optimizer/internal/autopilot"
	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/gateway"
	"github.com/elys-network/yield-optimizer/internal/history"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/state"
	"github.com/elys-network/yield-optimizer/internal/store"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/wallet"
	"github.com/elys-network/yield-optimizer/internal/web"
)

const shutdownTimeout = 15 * time.Second

// main is the entry point for the yield optimizer dashboard backend.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitializeWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	log.Info().Str("gateway", cfg.GatewayMode).Msg("Yield optimizer starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Remote Data Gateway ---
	gw, closeGateway, err := buildGateway(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gateway")
	}
	defer closeGateway()

	// --- 3. Optional persistence ---
	var (
		repo     *state.Repository
		src      history.Source      = history.NewMockSource(cfg.Near.ExplorerURL)
		settings store.SettingsStore = store.NewMemorySettings()
		runs     store.RunRecorder
	)
	if cfg.DB.Enabled() {
		db, err := state.Open(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		repo = state.NewRepository(db)
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		dbSource, err := history.NewDBSource(repo, cfg.Near.ExplorerURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create history source")
		}
		src, settings, runs = dbSource, repo, repo
	} else {
		log.Info().Msg("DB_HOST not set, history and settings are kept in memory")
	}

	// --- 4. Wallets and store ---
	nearWallet := wallet.NewNearWallet(cfg.Near, cfg.AppURL, wallet.NewFileSessionStore(cfg.Near.SessionFile))
	extWallet := wallet.NewExtensionWalletFromConfig(cfg.Extension)

	theme := &store.ThemeClassList{}
	appStore, err := store.New(store.Config{
		Gateway:        gw,
		Wallets:        []wallet.Adapter{nearWallet, extWallet},
		History:        src,
		Settings:       settings,
		Runs:           runs,
		Theme:          theme,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application store")
	}

	res := appStore.CheckAuthentication(ctx)
	log.Info().Str("status", string(res.Status)).Str("account", res.Value.Address).Msg("Initial authentication check done")

	if extWallet.IsAvailable(ctx) {
		go watchExtension(ctx, appStore, extWallet)
	}

	var pilot *autopilot.Autopilot
	if cfg.AutoRebalanceInterval > 0 {
		pilot, err = autopilot.New(autopilot.Config{Store: appStore, Interval: cfg.AutoRebalanceInterval})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create autopilot")
		}
		go pilot.RunLoop(ctx)
	}

	// --- 5. Servers ---
	webOpts := web.Options{
		Port:      cfg.WebPort,
		Store:     appStore,
		Theme:     theme,
		RateLimit: 20,
		Burst:     40,
		Autopilot: pilot,
	}
	if repo != nil {
		webOpts.Database = repo
		webOpts.Runs = repo
	}
	webServer, err := web.NewWebServer(webOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Info().Str("port", cfg.WebPort).Str("url", cfg.AppURL).Msg("Starting dashboard API")
		serverErr <- webServer.Start()
	}()

	var healthServer *web.HealthServer
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("Failed to listen for gRPC health")
		}
		healthServer = web.NewHealthServer()
		go func() { serverErr <- healthServer.Serve(lis) }()
	}

	// --- 6. Run until signalled ---
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if healthServer != nil {
		healthServer.SetServing(false)
	}
	if err := webServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	appStore.Close()
	if healthServer != nil {
		healthServer.Stop()
	}
	log.Info().Msg("Yield optimizer stopped")
}

// buildGateway selects the gateway from GATEWAY_MODE and puts the protocol cache in front of it.
func buildGateway(cfg config.AppConfig) (gateway.Gateway, func(), error) {
	var base gateway.Gateway
	switch cfg.GatewayMode {
	case config.GatewayModeHTTP:
		httpGateway, err := gateway.NewHTTPGateway(gateway.HTTPConfig{
			BaseURL:    cfg.APIBaseURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.RequestTimeout,
			RateLimit:  cfg.GatewayRateLimit,
			Burst:      int(cfg.GatewayRateLimit) + 1,
			MaxRetries: 3,
		})
		if err != nil {
			return nil, nil, err
		}
		base = httpGateway
	default:
		log.Warn().Msg("Using the mock gateway: protocols, balances and optimizations are canned data")
		base = gateway.NewMockGateway()
	}

	if cfg.ProtocolCacheTTL <= 0 {
		return base, func() {}, nil
	}
	cached, err := gateway.NewCachedGateway(base, cfg.ProtocolCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// watchExtension follows account and chain changes of the browser wallet while it is the active one.
func watchExtension(ctx context.Context, appStore *store.Store, ext *wallet.ExtensionWallet) {
	onAccounts := func(accounts []string) {
		snap := appStore.Snapshot()
		if snap.WalletInfo == nil || snap.WalletInfo.Type != types.WalletMetaMask {
			return
		}
		if len(accounts) == 0 {
			appStore.SetWalletInfo(nil)
			return
		}
		appStore.SetWalletInfo(&types.WalletInfo{Type: types.WalletMetaMask, Address: accounts[0], IsConnected: true})
	}
	onChain := func(chainID int64) {
		log.Info().Int64("chainId", chainID).Str("name", config.ChainName(chainID)).Msg("Browser wallet switched network")
	}
	if err := ext.Watch(ctx, 5*time.Second, onAccounts, onChain); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Browser wallet watcher stopped")
	}
}
