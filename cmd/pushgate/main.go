// pushgate terminates client WebSockets and manages them as a pooled fleet:
// admission control, group addressing, liveness probing, reaping, and
// graceful drain.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridianhq/pushgate/internal/config"
	"github.com/meridianhq/pushgate/internal/gateway"
	"github.com/meridianhq/pushgate/internal/pool"
	"github.com/meridianhq/pushgate/internal/sysmem"
	"github.com/meridianhq/pushgate/internal/transport"
	"github.com/meridianhq/pushgate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pushgate.example.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pushgate",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
		"max_connections", cfg.Pool.MaxConnections,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Memory signal feeding admission pressure checks
	memSig := sysmem.New(cfg.Memory.SampleTTL, logger)

	// Create and start the pool
	p := pool.New(poolConfig(cfg), logger, pool.WithMemorySignal(memSig.UsedFraction))
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pool", "error", err)
		os.Exit(1)
	}

	// Gateway and HTTP surface
	verifier := gateway.NewTokenVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Leeway)
	gw := gateway.New(gatewayConfig(cfg), p, verifier, logger)

	mux := gw.Routes()
	mux.HandleFunc("/debug/mem", debugMemHandler(p, memSig))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		logger.Info("starting http server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("pushgate running",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		cfg.Server.ShutdownTimeout+cfg.Pool.DrainTimeout)
	defer shutdownCancel()

	// Stop accepting new upgrades, then drain the live connections.
	httpServer.Shutdown(shutdownCtx)
	p.Shutdown(shutdownCtx)

	logger.Info("pushgate stopped")
}

// poolConfig maps the file configuration onto the pool's own knobs.
func poolConfig(cfg *config.GatewayConfig) pool.Config {
	return pool.Config{
		MaxConnections:             cfg.Pool.MaxConnections,
		MaxPerOwner:                cfg.Pool.MaxPerOwner,
		HealthInterval:             cfg.Pool.HealthInterval,
		StalenessThreshold:         cfg.Pool.StalenessThreshold,
		ProbeTimeout:               cfg.Pool.ProbeTimeout,
		ReapInterval:               cfg.Pool.ReapInterval,
		ReapGrace:                  cfg.Pool.ReapGrace,
		DrainTimeout:               cfg.Pool.DrainTimeout,
		PerConnOverheadBytes:       cfg.Pool.PerConnOverheadBytes,
		PerMembershipOverheadBytes: cfg.Pool.PerMembershipOverheadBytes,
		MaxEstimatedMemoryBytes:    cfg.Pool.MaxEstimatedMemoryBytes,
		MemoryPressureThreshold:    cfg.Pool.MemoryPressureThreshold,
	}
}

func gatewayConfig(cfg *config.GatewayConfig) gateway.Config {
	return gateway.Config{
		MaxConcurrentUpgrades: cfg.Server.MaxConcurrentUpgrades,
		HandshakeTimeout:      cfg.Transport.HandshakeTimeout,
		Transport: transport.Options{
			SendBufferSize: cfg.Transport.SendBufferSize,
			WriteTimeout:   cfg.Transport.WriteTimeout,
			ReadLimit:      cfg.Transport.ReadLimit,
		},
	}
}

// debugMemHandler reports actual process memory next to the pool's estimate.
func debugMemHandler(p pool.Pool, sig *sysmem.Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := map[string]any{
			"estimated_pool_bytes": p.Snapshot().EstimatedMemoryBytes,
		}
		if rss, err := sig.ProcessRSS(); err == nil {
			report["process_rss_bytes"] = rss
		}
		if frac, err := sig.UsedFraction(); err == nil {
			report["system_used_fraction"] = frac
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}
