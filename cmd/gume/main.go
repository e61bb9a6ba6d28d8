// Command gume is the main entry point for the Gume companion server.
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

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gumelab/gume/internal/config"
	"github.com/gumelab/gume/internal/health"
	"github.com/gumelab/gume/internal/httpapi"
	"github.com/gumelab/gume/internal/media"
	"github.com/gumelab/gume/internal/observe"
	"github.com/gumelab/gume/internal/relay"
	"github.com/gumelab/gume/internal/resilience"
	"github.com/gumelab/gume/internal/seed"
	"github.com/gumelab/gume/internal/store"
	"github.com/gumelab/gume/pkg/provider/reply"
	replyanyllm "github.com/gumelab/gume/pkg/provider/reply/anyllm"
	"github.com/gumelab/gume/pkg/provider/tts"
	"github.com/gumelab/gume/pkg/provider/tts/dummy"
	"github.com/gumelab/gume/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	seedData := flag.Bool("seed", false, "insert demo roles and providers on startup")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "gume: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "gume: %v\n", err)
		}
		return 1
	}
	if *seedData {
		cfg.Seed = true
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("gume starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "gume",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "err", err)
		return 1
	}

	if cfg.Seed {
		if err := seed.Run(ctx, st); err != nil {
			slog.Error("failed to seed demo data", "err", err)
			return 1
		}
	}

	// ── Media store ───────────────────────────────────────────────────────────
	mediaStore, err := media.NewStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		slog.Error("failed to initialise media store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	registry, err := buildTTSRegistry(cfg, mediaStore)
	if err != nil {
		slog.Error("failed to build tts providers", "err", err)
		return 1
	}
	generator, err := buildReplyGenerator(cfg)
	if err != nil {
		slog.Error("failed to build reply provider", "err", err)
		return 1
	}

	// ── HTTP routes ───────────────────────────────────────────────────────────
	metrics := observe.DefaultMetrics()
	mux := http.NewServeMux()

	relayHandler := &relay.Handler{
		Store:          st,
		Providers:      registry,
		Reply:          generator,
		Directory:      relay.NewDirectory(),
		Metrics:        metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	relayHandler.Register(mux)

	apiHandler := &httpapi.Handler{Store: st}
	apiHandler.Register(mux)

	health.New(health.Database(pool)).Register(mux)
	mediaStore.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := httpapi.CORS(cfg.Server.AllowedOrigins)(observe.Middleware(metrics)(mux))

	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// ── Database ──────────────────────────────────────────────────────────────────

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildTTSRegistry always installs the dummy provider as the fallback; a
// configured provider is registered next to it under its own key, so roles
// keep working when they name a key that was never configured. The configured
// provider is wrapped in a circuit breaker; set the "fallback_to_dummy"
// option to degrade to placeholder audio instead of skipping audio when the
// backend is down.
func buildTTSRegistry(cfg *config.Config, sink elevenlabs.AudioSink) (*tts.Registry, error) {
	fallback := dummy.New()
	registry := tts.NewRegistry(fallback)

	entry := cfg.Providers.TTS
	switch entry.Name {
	case "", "dummy":
		// Fallback only.
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		p, err := elevenlabs.New(entry.APIKey, sink, opts...)
		if err != nil {
			return nil, fmt.Errorf("create elevenlabs provider: %w", err)
		}
		guarded := resilience.NewTTSFallback(p, "elevenlabs", resilience.FallbackConfig{})
		if optBool(entry.Options, "fallback_to_dummy") {
			guarded.AddFallback("dummy", fallback)
		}
		registry.Register("elevenlabs", guarded)
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "model", entry.Model)
	default:
		slog.Warn("unknown tts provider — synthesis will use the dummy fallback", "name", entry.Name)
	}
	return registry, nil
}

// buildReplyGenerator wires the configured LLM backend behind a failover
// group with echo as the last resort, so sessions never stall on the LLM.
func buildReplyGenerator(cfg *config.Config) (reply.Generator, error) {
	entry := cfg.Providers.Reply
	if entry.Name == "" || entry.Name == "echo" {
		return reply.Echo{}, nil
	}

	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	g, err := replyanyllm.New(entry.Name, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("create reply provider %q: %w", entry.Name, err)
	}
	guarded := resilience.NewReplyFallback(g, entry.Name, resilience.FallbackConfig{})
	guarded.AddFallback("echo", reply.Echo{})
	slog.Info("provider created", "kind", "reply", "name", entry.Name, "model", entry.Model)
	return guarded, nil
}

// optBool extracts a bool from a provider Options map. Returns false if the
// map is nil, the key is absent, or the value is not a bool.
func optBool(opts map[string]any, key string) bool {
	if opts == nil {
		return false
	}
	b, _ := opts[key].(bool)
	return b
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           Gume — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Reply", cfg.Providers.Reply.Name, cfg.Providers.Reply.Model)
	fmt.Printf("║  Media dir       : %-19s ║\n", truncate(cfg.Media.Dir))
	if cfg.Seed {
		fmt.Printf("║  Demo seed       : %-19s ║\n", "enabled")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
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
