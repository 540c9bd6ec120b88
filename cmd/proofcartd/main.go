package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"proofcart/config"
	"proofcart/core/events"
	"proofcart/core/state"
	"proofcart/crypto"
	"proofcart/ledger"
	"proofcart/native/escrow"
	"proofcart/native/registry"
	"proofcart/observability/logging"
	"proofcart/observability/otel"
	"proofcart/rpc"
	"proofcart/rpc/middleware"
	"proofcart/storage"
)

const shutdownTimeout = 10 * time.Second

// genesisAppliedKey marks the data dir as already funded so allocations run
// exactly once.
const genesisAppliedKey = "genesis/applied"

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("proofcartd", cfg.Telemetry.Environment)

	ctx := context.Background()
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "proofcartd",
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("init telemetry", "err", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		logger.Error("open database", "err", err, "dataDir", cfg.DataDir)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	led := ledger.New(manager)

	if err := applyGenesis(db, led, cfg.Genesis); err != nil {
		logger.Error("apply genesis allocations", "err", err)
		os.Exit(1)
	}

	engineCfg, err := cfg.EscrowEngineConfig()
	if err != nil {
		logger.Error("escrow configuration", "err", err)
		os.Exit(1)
	}
	recorder := events.NewRecorder()

	escrowEngine := escrow.NewEngine(engineCfg)
	escrowEngine.SetState(manager)
	escrowEngine.SetLedger(led)
	escrowEngine.SetEmitter(recorder)

	registryEngine := registry.NewEngine()
	registryEngine.SetState(manager)
	registryEngine.SetEmitter(recorder)

	authToken := strings.TrimSpace(os.Getenv("PROOFCART_RPC_TOKEN"))
	if authToken == "" {
		logger.Warn("PROOFCART_RPC_TOKEN not set; mutating RPC methods are disabled")
	}

	server := rpc.NewServer(escrowEngine, registryEngine, led, recorder, logger, authToken)

	var mws []func(http.Handler) http.Handler
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		})
		mws = append(mws, limiter.Middleware())
	}
	if cfg.JWT.Enabled {
		auth := middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.JWT.HMACSecret,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
		}, logger)
		mws = append(mws, auth.Middleware())
	}

	srv := &http.Server{
		Addr:    cfg.RPCAddress,
		Handler: server.Handler(mws...),
	}

	go func() {
		logger.Info("rpc server listening", "addr", cfg.RPCAddress, "network", cfg.NetworkName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}

func applyGenesis(db storage.Database, led *ledger.Ledger, allocs []config.GenesisAccount) error {
	applied, err := db.Has([]byte(genesisAppliedKey))
	if err != nil {
		return err
	}
	if applied || len(allocs) == 0 {
		return nil
	}
	for _, alloc := range allocs {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return fmt.Errorf("genesis address %s: %w", alloc.Address, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
		if !ok || balance.Sign() <= 0 {
			return fmt.Errorf("genesis balance %q must be a positive integer", alloc.Balance)
		}
		if err := led.Credit(addr.Array(), balance); err != nil {
			return err
		}
	}
	return db.Put([]byte(genesisAppliedKey), []byte("1"))
}
