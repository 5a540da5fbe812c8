package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatform/pkg/chatform"
	"github.com/go-go-golems/chatform/pkg/eventbus"
)

//go:embed static/*
var staticFS embed.FS

var rootCmd = &cobra.Command{
	Use:   "chatform",
	Short: "Declarative chat UI orchestration around a response function",
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		bot        string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo chat UI with a built-in bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(logLevel)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("bot") {
				cfg.Bot = bot
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&bot, "bot", "stream-echo", "built-in bot (echo or stream-echo)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	return cmd
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serve(ctx context.Context, cfg AppConfig) error {
	fn, stream, err := botFunctions(cfg.Bot)
	if err != nil {
		return err
	}

	bus, err := eventbus.Build(cfg.Redis)
	if err != nil {
		return errors.Wrap(err, "build event bus")
	}
	defer func() { _ = bus.Close() }()

	ocfg := chatform.Config{
		BaseCtx:            ctx,
		Func:               fn,
		Stream:             stream,
		Title:              cfg.Title,
		Description:        cfg.Description,
		Examples:           cfg.Examples,
		CacheExamples:      cfg.CacheExamples,
		Bus:                bus,
		SessionIdleTimeout: time.Duration(cfg.IdleTimeoutSec) * time.Second,
	}

	if cfg.HistoryDB != "" {
		dsn, err := chatform.SQLiteDSNForFile(cfg.HistoryDB)
		if err != nil {
			return err
		}
		store, err := chatform.NewHistoryStore(dsn)
		if err != nil {
			return errors.Wrap(err, "open history store")
		}
		defer func() { _ = store.Close() }()
		ocfg.HistoryStore = store
	}
	if cfg.ExamplesDB != "" {
		dsn, err := chatform.SQLiteDSNForFile(cfg.ExamplesDB)
		if err != nil {
			return err
		}
		store, err := chatform.NewExampleStore(dsn)
		if err != nil {
			return errors.Wrap(err, "open example store")
		}
		defer func() { _ = store.Close() }()
		ocfg.ExampleStore = store
	}

	orchestrator, err := chatform.New(ocfg)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	staticRoot, err := fs.Sub(staticFS, "static")
	if err != nil {
		return errors.Wrap(err, "embedded static fs")
	}
	router := chatform.NewRouter(orchestrator, chatform.WithStaticFS(staticRoot))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("component", "chatform").Str("addr", cfg.Addr).Str("bot", cfg.Bot).Msg("serving chat UI")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func main() {
	rootCmd.AddCommand(newServeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
