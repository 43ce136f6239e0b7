// Command voxauth is the main entry point for the voxauth voice
// authentication server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MrWong99/voxauth/internal/app"
	"github.com/MrWong99/voxauth/internal/config"
	"github.com/MrWong99/voxauth/internal/health"
	"github.com/MrWong99/voxauth/internal/infer"
	"github.com/MrWong99/voxauth/internal/observe"
	"github.com/MrWong99/voxauth/pkg/pipeline"
	"github.com/MrWong99/voxauth/pkg/provider/asr"
	asrsherpa "github.com/MrWong99/voxauth/pkg/provider/asr/sherpa"
	"github.com/MrWong99/voxauth/pkg/provider/asr/whisper"
	"github.com/MrWong99/voxauth/pkg/provider/embedding"
	embsherpa "github.com/MrWong99/voxauth/pkg/provider/embedding/sherpa"
	"github.com/MrWong99/voxauth/pkg/provider/vad"
	vadsherpa "github.com/MrWong99/voxauth/pkg/provider/vad/sherpa"
)

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
			fmt.Fprintf(os.Stderr, "voxauth: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxauth: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxauth starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxauth",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Model registry + inference pools ─────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg, cfg.Audio.SampleRate)

	workers := cfg.Session.InferWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	pools, err := buildPools(reg, cfg, workers)
	if err != nil {
		slog.Error("failed to load models", "err", err)
		return 1
	}
	defer pools.close()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	proc := pipeline.New(pipelineConfig(cfg.Audio), pools.asr, pools.vad, pools.emb, nil)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, workers)

	application, err := app.New(ctx, cfg, proc,
		app.WithChecker(health.Checker{Name: "models", Check: pools.ping}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		go applyReloads(watcher.Changes(), logLevel, application)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ──────────────────────────────────────────────────────────

// registerBuiltinBackends wires the model factories that ship with voxauth
// into reg. Each factory builds one fresh, non-shareable handle.
func registerBuiltinBackends(reg *config.Registry, sampleRate int) {
	reg.RegisterASR("sensevoice", func(cfg config.ASRConfig) (asr.Engine, error) {
		return asrsherpa.New(asrsherpa.Config{
			Model:      cfg.Model,
			Tokens:     cfg.Tokens,
			Language:   cfg.Language,
			NumThreads: cfg.NumThreads,
		})
	})

	reg.RegisterASR("whisper", func(cfg config.ASRConfig) (asr.Engine, error) {
		var opts []whisper.Option
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		return whisper.New(cfg.Model, opts...)
	})

	reg.RegisterVAD("silero", func(cfg config.VADConfig) (vad.Detector, error) {
		return vadsherpa.New(vadsherpa.Config{
			Model:              cfg.Model,
			Threshold:          cfg.Threshold,
			MinSilenceDuration: cfg.MinSilence,
			MinSpeechDuration:  cfg.MinSpeech,
			WindowSize:         cfg.WindowSize,
			SampleRate:         sampleRate,
		})
	})

	reg.RegisterSpeaker("sherpa", func(cfg config.SpeakerConfig) (embedding.Extractor, error) {
		return embsherpa.New(embsherpa.Config{
			Model:      cfg.Model,
			NumThreads: cfg.NumThreads,
		})
	})
}

// modelPools bundles the three per-stage handle pools.
type modelPools struct {
	asr *infer.Pool[asr.Engine]
	vad *infer.Pool[vad.Detector]
	emb *infer.Pool[embedding.Extractor]
}

// ping feeds the /readyz "models" check: it verifies a handle can still
// be checked out of each pool, which fails once the pools are closed or
// permanently exhausted.
func (p *modelPools) ping(ctx context.Context) error {
	a, err := p.asr.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("asr pool: %w", err)
	}
	p.asr.Release(a)

	v, err := p.vad.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("vad pool: %w", err)
	}
	p.vad.Release(v)

	e, err := p.emb.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("speaker pool: %w", err)
	}
	p.emb.Release(e)
	return nil
}

func (p *modelPools) close() {
	for _, c := range []interface{ Close() error }{p.emb, p.vad, p.asr} {
		if err := c.Close(); err != nil {
			slog.Warn("pool close error", "err", err)
		}
	}
}

// buildPools loads `workers` handles of each model kind. Handles are not
// safe for concurrent use, so every pool slot holds its own.
func buildPools(reg *config.Registry, cfg *config.Config, workers int) (*modelPools, error) {
	asrName := cfg.Models.ASR.Name
	if asrName == "" {
		asrName = "sensevoice"
	}
	asrCfg := cfg.Models.ASR
	asrCfg.Name = asrName

	asrPool, err := infer.NewPool(workers,
		func() (asr.Engine, error) { return reg.CreateASR(asrCfg) },
		func(e asr.Engine) error { return e.Close() },
	)
	if err != nil {
		return nil, fmt.Errorf("asr pool: %w", err)
	}

	vadPool, err := infer.NewPool(workers,
		func() (vad.Detector, error) { return reg.CreateVAD("silero", cfg.Models.VAD) },
		func(d vad.Detector) error { return d.Close() },
	)
	if err != nil {
		_ = asrPool.Close()
		return nil, fmt.Errorf("vad pool: %w", err)
	}

	embPool, err := infer.NewPool(workers,
		func() (embedding.Extractor, error) { return reg.CreateSpeaker("sherpa", cfg.Models.Speaker) },
		func(ex embedding.Extractor) error { return ex.Close() },
	)
	if err != nil {
		_ = vadPool.Close()
		_ = asrPool.Close()
		return nil, fmt.Errorf("speaker pool: %w", err)
	}

	return &modelPools{asr: asrPool, vad: vadPool, emb: embPool}, nil
}

// pipelineConfig maps the audio section onto the pipeline defaults.
func pipelineConfig(a config.AudioConfig) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if a.SampleRate > 0 {
		cfg.SampleRate = a.SampleRate
	}
	if a.MinDuration > 0 {
		cfg.MinDuration = a.MinDuration
	}
	if a.MaxDuration > 0 {
		cfg.MaxDuration = a.MaxDuration
	}
	if a.SegmentPadding > 0 {
		cfg.SegmentPadding = a.SegmentPadding
	}
	cfg.NoOverlap = a.NoOverlap
	return cfg
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, workers int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxauth — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printModel("ASR", cfg.Models.ASR.Name, cfg.Models.ASR.Model)
	printModel("VAD", "silero", cfg.Models.VAD.Model)
	printModel("Speaker", "sherpa", cfg.Models.Speaker.Model)
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Gallery         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Gallery         : %-19s ║\n", "in-memory")
	}
	fmt.Printf("║  Infer workers   : %-19d ║\n", workers)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printModel(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger around a LevelVar so the config
// reload loop can retune verbosity without swapping handlers.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Config hot reload ──────────────────────────────────────────────────────────

// applyReloads consumes accepted config reloads and applies the
// hot-reloadable sections: log level and the auth policy block.
// Everything else only takes effect on restart.
func applyReloads(changes <-chan config.Change, level *slog.LevelVar, application *app.App) {
	for ch := range changes {
		if ch.Diff.LogLevelChanged {
			level.Set(slogLevel(ch.Diff.NewLogLevel))
			slog.Info("log level updated", "log_level", ch.Diff.NewLogLevel)
		}
		if ch.Diff.AuthChanged {
			application.ApplyAuthPolicy(ch.Diff.NewAuth)
		}
		if ch.Diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	}
}
