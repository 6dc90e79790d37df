// Command codeorbd is the CodeOrb gateway daemon. It loads a YAML
// configuration file, opens the serial link to the target, drives the
// scheduler that multiplexes the target's content streams and operator
// commands over that link, exposes the three TCP-facing operator services
// plus an auxiliary HTTP control surface, and shuts down gracefully on
// SIGTERM or SIGINT.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NoOrientationProgramming/code-orb/internal/config"
	"github.com/NoOrientationProgramming/code-orb/internal/engine"
	"github.com/NoOrientationProgramming/code-orb/internal/fanout"
	"github.com/NoOrientationProgramming/code-orb/internal/httpapi"
	"github.com/NoOrientationProgramming/code-orb/internal/link"
	"github.com/NoOrientationProgramming/code-orb/internal/tcpsvc"
)

func main() {
	configPath := flag.String("config", "/etc/codeorb/config.yaml", "path to the CodeOrb gateway YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "codeorbd: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("config_path", *configPath),
		slog.String("device", cfg.Device),
		slog.Int("baud", cfg.Baud),
		slog.String("log_level", cfg.LogLevel),
	)

	logBroadcaster := fanout.New(logger, 0)
	defer logBroadcaster.Close()

	eng := engine.New(
		link.SerialOpener{Baud: cfg.Baud},
		cfg.Device,
		cfg.InitCode,
		logger,
		engine.WithSink(fanout.LogSink{Broadcaster: logBroadcaster}),
		engine.WithRefreshRate(time.Duration(cfg.RefreshRateMs)*time.Millisecond),
		engine.WithMonitoring(*cfg.Monitoring),
		engine.WithManualControl(cfg.ManualControl),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	errCh := make(chan error, 4)
	startServices(ctx, cfg, eng, logBroadcaster, logger, errCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("service error, shutting down", slog.Any("error", err))
		}
	}

	cancel()
	wg.Wait()
	logger.Info("codeorbd exited cleanly")
}

// startServices launches the optional TCP services (each only if its
// listen address is configured) and the HTTP control surface, all stopping
// when ctx is cancelled. Errors are reported on errCh without blocking.
func startServices(ctx context.Context, cfg *config.Config, eng *engine.Engine, logBroadcaster *fanout.Broadcaster, logger *slog.Logger, errCh chan<- error) {
	if addr := cfg.Services.ProcTreeAddr; addr != "" {
		svc := &tcpsvc.ProcTreeService{Addr: addr, Source: eng, Logger: logger}
		go func() {
			if err := svc.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("proctree service: %w", err)
			}
		}()
	}

	if addr := cfg.Services.LogStreamAddr; addr != "" {
		svc := &tcpsvc.LogStreamService{Addr: addr, Broadcaster: logBroadcaster, Logger: logger}
		go func() {
			if err := svc.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("logstream service: %w", err)
			}
		}()
	}

	if addr := cfg.Services.RemoteShellAddr; addr != "" {
		svc := &tcpsvc.RemoteShellService{Addr: addr, Engine: eng, Logger: logger}
		go func() {
			if err := svc.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("remoteshell service: %w", err)
			}
		}()
	}

	if addr := cfg.Services.HTTPAddr; addr != "" {
		startHTTP(ctx, cfg, eng, logger, errCh, addr)
	}
}

// startHTTP wires the chi control-plane router plus the Prometheus-text
// metrics endpoint into one http.Server and runs it until ctx is cancelled.
func startHTTP(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *slog.Logger, errCh chan<- error, addr string) {
	var pubKey *rsa.PublicKey
	if cfg.Services.JWTPublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.Services.JWTPublicKeyPath)
		if err != nil {
			logger.Error("failed to read JWT public key", slog.Any("error", err))
			errCh <- fmt.Errorf("http control surface: %w", err)
			return
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			logger.Error("failed to parse JWT public key", slog.Any("error", err))
			errCh <- fmt.Errorf("http control surface: %w", err)
			return
		}
		pubKey = key
		logger.Info("JWT validation enabled for /api/v1")
	} else {
		logger.Warn("jwt_public_key_path not configured; /api/v1 authentication disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(httpapi.NewServer(eng), pubKey))
	mux.Handle("/metrics", eng.Metrics().Handler())

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http control surface shutdown error", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("http control surface listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http control surface: %w", err)
		}
	}()
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
