package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/config"
	"github.com/jonathan/quick-resume/internal/pipeline"
	"github.com/jonathan/quick-resume/internal/rendering"
	"github.com/jonathan/quick-resume/internal/server"
)

// defaultLockName is the lock file used when lock_file is not configured.
const defaultLockName = "quick_resume.lock"

var (
	serveAddr    string
	serveService bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture listener and observer API",
	Long: `Start an HTTP server on the local machine. Captures posted to /captures run
through the pipeline in the background; observers follow progress on the
/events stream and answer same-employer conflicts on /decisions.

With --service the server also exposes POST /generate and GET /proceed, so
other instances can use it as their remote generation service.`,
	RunE: runServe,
}

func init() {
	addOutputFlags(serveCmd)
	addGenerationFlags(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default 127.0.0.1:8080)")
	serveCmd.Flags().BoolVar(&serveService, "service", false, "Expose the generation service endpoints")
	serveCmd.Flags().BoolVar(&flagOpen, "open", false, "Open each exported document in the platform viewer")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = serveAddr
	}
	if serveService && cfg.Strategy != config.StrategyLocal {
		return fmt.Errorf("--service requires the local generation strategy")
	}
	logger := newLogger(cfg)

	lockPath := cfg.LockFile
	if lockPath == "" {
		lockPath = filepath.Join(os.TempDir(), defaultLockName)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("another quick_resume serve instance holds %s", lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategy, closeStrategy, err := buildStrategy(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStrategy() }()

	renderer := &rendering.DOCXRenderer{TemplatePath: cfg.Template}
	broker := pipeline.NewBroker(pipeline.DefaultHistoryLimit)

	opts := pipeline.Options{
		OutputDir:        cfg.OutputDir,
		FilenameTemplate: cfg.OutputFilename,
		Strategy:         strategy,
		Renderer:         renderer,
		Sink:             broker,
		Logger:           logger,
	}
	if cfg.Verbose {
		opts.Sink = pipeline.MultiSink{broker, newConsoleSink(cmd.OutOrStdout())}
	}
	if cfg.OpenAfterExport {
		opts.Opener = archive.SystemOpener{}
	}

	srvCfg := server.Config{
		Addr:        cfg.ListenAddr,
		OutputDir:   cfg.OutputDir,
		Broker:      broker,
		Logger:      logger,
		BaseContext: ctx,
	}

	history, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
		opts.History = history
		srvCfg.History = history
	}

	orch, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	srvCfg.Orchestrator = orch

	if serveService {
		service, err := server.NewGenerationService(server.ServiceOptions{
			Strategy:         strategy,
			Renderer:         renderer,
			OutputDir:        cfg.OutputDir,
			FilenameTemplate: cfg.OutputFilename,
			Logger:           logger,
		})
		if err != nil {
			return err
		}
		srvCfg.Service = service

		if cfg.ServiceToken != "" {
			tokens, err := newTokenService(cfg)
			if err != nil {
				return err
			}
			srvCfg.Tokens = server.TokenValidator(tokens)
		} else {
			logger.Warn("generation service endpoints are unauthenticated", "hint", "set "+config.EnvServiceToken)
		}
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	from := broker.Latest()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return logEvents(gctx, broker, from, logger)
	})

	err = g.Wait()
	orch.Wait()
	return err
}

// logEvents logs each finished request after cursor until ctx is done.
func logEvents(ctx context.Context, broker *pipeline.Broker, cursor int64, logger *slog.Logger) error {
	for {
		changed := broker.Changed()
		events, err := broker.EventsAfter(cursor)
		switch {
		case errors.Is(err, pipeline.ErrCursorExpired):
			cursor = broker.Oldest()
			continue
		case err != nil:
			return err
		}

		for _, e := range events {
			if e.Event.Type.Terminal() {
				logger.Info("request finished", "request_id", e.Event.ID, "type", e.Event.Type, "text", e.Event.Text)
			} else {
				logger.Debug("event", "seq", e.Seq, "request_id", e.Event.ID, "type", e.Event.Type)
			}
			cursor = e.Seq
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}
