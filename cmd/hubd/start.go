package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"hubnode/core"
	"hubnode/httpapi"
	pkgconfig "hubnode/pkg/config"
)

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "run the Hub engine and its HTTP edge",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runStart(env))
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "config environment overlay (e.g. bootstrap)")
	return cmd
}

func runStart(env string) int {
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		log.WithError(err).Error("load config")
		return 2
	}
	configureLogging(cfg)

	db := core.NewInMemoryKV()
	if !cfg.Engine.Ephemeral {
		log.Warn("persistent storage backend is an external collaborator not wired into this build; running on the in-memory store regardless of engine.ephemeral=false")
	}

	engine, err := core.NewEngine(db, core.EngineConfig{
		Network:       cfg.Network.ID,
		Workers:       cfg.Engine.ValidatorWorkers,
		DefaultLimits: core.LimitsFor(0, core.FarcasterEpoch),
		Logger:        log.StandardLogger(),
	})
	if err != nil {
		log.WithError(err).Error("start engine")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.RunRevokeQueue(ctx)
	go reapLoop(ctx, engine)

	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: httpapi.NewRouter(engine),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.ListenAddr).Info("hubd: listening")
		serveErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server")
			return 1
		}
	case <-sig:
		log.Info("hubd: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("http server shutdown")
			return 1
		}
	}
	return 0
}

func reapLoop(ctx context.Context, engine *core.Engine) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.ReapIdleWorkers()
		}
	}
}

func configureLogging(cfg *pkgconfig.Config) {
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("open log file, falling back to stderr")
			return
		}
		log.SetOutput(f)
	}
}
