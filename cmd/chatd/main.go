package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatd/internal/broker"
	"chatd/internal/common/fsutil"
	"chatd/internal/config"
	"chatd/internal/httpapi"
	"chatd/internal/memstore"
	"chatd/internal/promptstore"
	"chatd/internal/transcript"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envOr returns the environment value for key, or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		cfg     config.Config
	)
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Serialized chat broker for a CLI reasoning backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				fileCfg, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				// Flags set on the command line win over the file.
				cfg = mergeConfig(fileCfg, cfg, cmd)
			}
			return run(cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "Optional config file (.yaml/.json/.toml)")
	f.StringVar(&cfg.Addr, "addr", envOr("CHATD_ADDR", ":8080"), "HTTP listen address")
	f.StringVar(&cfg.BackendBin, "backend-bin", envOr("CHATD_BACKEND", "claude"), "Backend CLI executable")
	f.StringVar(&cfg.Model, "model", envOr("CHATD_MODEL", ""), "Backend model name")
	f.StringVar(&cfg.DataDir, "data-dir", envOr("CHATD_DATA_DIR", "~/.chatd"), "Directory for memory and transcripts")
	f.StringVar(&cfg.PromptsDir, "prompts-dir", envOr("CHATD_PROMPTS_DIR", ""), "Prompt directory (default <data-dir>/prompts)")
	f.IntVar(&cfg.MaxQueueDepth, "max-queue-depth", 0, "Bound on queued requests (0=unbounded)")
	f.IntVar(&cfg.TimeoutSeconds, "timeout-seconds", 0, "Backend invocation timeout in seconds (0=default)")
	f.StringVar(&cfg.LogLevel, "log-level", envOr("CHATD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	return root
}

// mergeConfig overlays flag values that were explicitly set onto the file
// config.
func mergeConfig(file, flags config.Config, cmd *cobra.Command) config.Config {
	out := file
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("addr") || out.Addr == "" {
		out.Addr = flags.Addr
	}
	if set("backend-bin") || out.BackendBin == "" {
		out.BackendBin = flags.BackendBin
	}
	if set("model") || out.Model == "" {
		out.Model = flags.Model
	}
	if set("data-dir") || out.DataDir == "" {
		out.DataDir = flags.DataDir
	}
	if set("prompts-dir") || out.PromptsDir == "" {
		out.PromptsDir = flags.PromptsDir
	}
	if set("max-queue-depth") || out.MaxQueueDepth == 0 {
		out.MaxQueueDepth = flags.MaxQueueDepth
	}
	if set("timeout-seconds") || out.TimeoutSeconds == 0 {
		out.TimeoutSeconds = flags.TimeoutSeconds
	}
	if set("log-level") || out.LogLevel == "" {
		out.LogLevel = flags.LogLevel
	}
	return out
}

func run(cfg config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	dataDir, err := fsutil.ExpandHome(cfg.DataDir)
	if err != nil {
		return err
	}
	promptsDir := cfg.PromptsDir
	if promptsDir == "" {
		promptsDir = filepath.Join(dataDir, "prompts")
	} else if promptsDir, err = fsutil.ExpandHome(promptsDir); err != nil {
		return err
	}
	if !fsutil.PathExists(promptsDir) {
		log.Warn().Str("dir", promptsDir).Msg("prompt directory does not exist yet; requests get no instructions until prompts appear")
	}

	prompts, err := promptstore.New(promptsDir, log.With().Str("component", "prompts").Logger())
	if err != nil {
		return fmt.Errorf("prompt store: %w", err)
	}
	memory, err := memstore.New(filepath.Join(dataDir, "memory.yaml"),
		log.With().Str("component", "memory").Logger())
	if err != nil {
		return fmt.Errorf("memory store: %w", err)
	}
	transcripts, err := transcript.New(filepath.Join(dataDir, "transcripts"),
		log.With().Str("component", "transcripts").Logger())
	if err != nil {
		return fmt.Errorf("transcript store: %w", err)
	}

	b := broker.NewWithConfig(broker.BrokerConfig{
		BackendBin:    cfg.BackendBin,
		Model:         cfg.Model,
		MaxQueueDepth: cfg.MaxQueueDepth,
		InvokeTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Prompts:       prompts,
		Memory:        memory,
		Transcripts:   transcripts,
		Logger:        log.With().Str("component", "broker").Logger(),
	})
	defer b.Close()

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	mux := httpapi.NewMux(b)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.BackendBin).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return prompts.Watch(ctx.Done())
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("chatd stopped")
	return nil
}
