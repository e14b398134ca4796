// Command voicerelay is the relay server bridging voice clients to the
// upstream realtime speech API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/agent"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/config"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/health"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/history"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/observe"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/relay"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/upstream"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

const defaultListenAddr = ":8000"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicerelay: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicerelay: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("voicerelay starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	obsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicerelay",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Conversation history ──────────────────────────────────────────────────
	var (
		store    history.Store
		checkers []health.Checker
	)
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		pg, err := history.NewPGStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect history store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pg.Ping})
		slog.Info("history store connected", "backend", "postgres")
	} else {
		store = history.NewMemStore()
		slog.Info("history store in memory only — entries are lost on restart")
	}

	// ── Agent catalog ─────────────────────────────────────────────────────────
	registry, err := agent.RegistryFromFile(cfg.Agents.File)
	if err != nil {
		slog.Error("failed to load agent catalog", "err", err)
		return 1
	}
	slog.Info("agent catalog loaded",
		"agents", len(registry.All()),
		"default", registry.DefaultID(),
	)

	// ── Upstream engine ───────────────────────────────────────────────────────
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		slog.Warn("no realtime API key configured — agent binds will fail")
	}
	var upOpts []upstream.Option
	if cfg.Upstream.Model != "" {
		upOpts = append(upOpts, upstream.WithModel(cfg.Upstream.Model))
	}
	if cfg.Upstream.BaseURL != "" {
		upOpts = append(upOpts, upstream.WithBaseURL(cfg.Upstream.BaseURL))
	}
	engine := upstream.New(apiKey, upOpts...)

	// ── HTTP routes ───────────────────────────────────────────────────────────
	instrumented := http.NewServeMux()
	health.New("voicerelay", version, checkers...).Register(instrumented)
	instrumented.Handle("GET /metrics", promhttp.Handler())

	mux := http.NewServeMux()
	mux.Handle("/", observe.Middleware(metrics)(instrumented))

	// The websocket endpoint hijacks the connection, which the metrics
	// middleware's recording ResponseWriter cannot do, so it mounts on
	// the outer mux directly.
	srv := relay.New(engine, registry,
		relay.WithHistory(store),
		relay.WithMetrics(metrics),
	)
	srv.Register(mux)

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- httpSrv.ListenAndServe()
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := obsShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
