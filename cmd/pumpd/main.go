package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pumpd/internal/common/fsutil"
	"pumpd/internal/config"
	"pumpd/internal/engine"
	"pumpd/internal/httpapi"
	"pumpd/internal/loop"
	"pumpd/internal/nightscout"
	"pumpd/internal/store"
	"pumpd/pkg/types"
)

// Build-time metadata, set via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pumpd",
		Short:         "Closed-loop insulin delivery daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pumpd %s (%s)\n", version, commit)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string
	var flagAddr, flagDataDir, flagEngineURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the loop daemon and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configPath, flagAddr, flagDataDir, flagEngineURL)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file (.toml/.yaml/.json)")
	cmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "", "Directory for the persistent store")
	cmd.Flags().StringVar(&flagEngineURL, "engine-url", "", "Dosing engine service URL")
	return cmd
}

// resolveConfig layers config file, environment, flags (highest wins).
func resolveConfig(path, addr, dataDir, engineURL string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if v := os.Getenv("PUMPD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("PUMPD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PUMPD_ENGINE_URL"); v != "" {
		cfg.EngineURL = v
	}
	if v := os.Getenv("PUMPD_NIGHTSCOUT_URL"); v != "" {
		cfg.NightscoutURL = v
	}
	if v := os.Getenv("PUMPD_NIGHTSCOUT_TOKEN"); v != "" {
		cfg.NightscoutToken = v
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if engineURL != "" {
		cfg.EngineURL = engineURL
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "~/.pumpd/data"
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func serve(cfg config.Config) error {
	log := newLogger(cfg)

	dataDir, err := fsutil.ExpandHome(cfg.DataDir)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	st, err := store.Open(store.Config{Path: dataDir, SyncWrites: true, Logger: log})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("store close failed")
		}
	}()

	eng, err := engine.New(engine.Config{URL: cfg.EngineURL, Timeout: cfg.EngineTimeout()}, log)
	if err != nil {
		return err
	}

	var reporter loop.Reporter
	if cfg.NightscoutURL != "" {
		reporter = nightscout.New(nightscout.Config{
			URL:   cfg.NightscoutURL,
			Token: cfg.NightscoutToken,
		}, log)
	}

	// No pump transport ships with the daemon; a hardware integration
	// supplies the Driver here. Without one the daemon runs open loop and
	// every actuation is refused by the safety gate.
	var driver loop.Driver

	mgr, err := loop.New(loop.Config{
		LoopInterval:     cfg.LoopInterval(),
		SuggestionExpiry: cfg.SuggestionExpiry(),
		InitialSettings: types.Settings{
			ClosedLoop:      cfg.ClosedLoop,
			ResumeIfNoTemp:  cfg.ResumeIfNoTemp,
			AutotuneEnabled: cfg.AutotuneEnabled,
		},
	}, loop.Options{
		Store:    st,
		Driver:   driver,
		Engine:   eng,
		Reporter: reporter,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("loop manager: %w", err)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	if err := mgr.Start(baseCtx); err != nil {
		return err
	}
	defer mgr.Stop()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)
	if cfg.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("version", version).Msg("pumpd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
