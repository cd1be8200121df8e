package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robopilot/robopilot/internal/analyzer"
	"github.com/robopilot/robopilot/internal/builder"
	"github.com/robopilot/robopilot/internal/cache"
	"github.com/robopilot/robopilot/internal/config"
	"github.com/robopilot/robopilot/internal/deploy"
	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/insight"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/notify"
	"github.com/robopilot/robopilot/internal/provider"
	"github.com/robopilot/robopilot/internal/secret"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
	"github.com/robopilot/robopilot/internal/watchdog"
	"github.com/robopilot/robopilot/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("starting robopilot")

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	cipher, err := secret.NewCipher(cfg.SecretKey)
	if err != nil {
		log.Error("credential cipher init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Terminal plumbing.
	client := terminal.NewClient(cfg.Terminal.BridgeURL, log)
	manager := terminal.NewManager(client, log)
	process := terminal.NewProcessManager(cfg.Terminal.BinaryPath, client, log)
	signals := terminal.NewSignals(client)

	// Historical data chain: cache, live terminal, public provider.
	cacheStore := cache.New(cfg.Data.CacheDir, cfg.CacheTTL())
	providerClient := provider.NewClient(cfg.Data.ProviderURL, log)
	mirror := histdata.NewMirror(cfg.Data.MirrorDir)
	data := histdata.NewService(cacheStore, histdata.NewTerminalSource(manager), providerClient, mirror,
		cfg.Data.Retries, cfg.BackoffBase(), log)

	notifier := notify.NewNotifier(cfg, log)

	bld := builder.New(repo, data, cipher, cfg.Build.Workers, cfg.Build.QueueSize, log).
		WithNotifier(notifier)
	if cfg.Insight.Enabled {
		bld.WithReviewer(insight.NewClient(cfg, log))
	}
	bld.Start(ctx)

	deployer := deploy.NewCoordinator(repo,
		&deploy.ManagerTerminal{Manager: manager},
		&deploy.FileGenerator{},
		&deploy.SignalConfirmer{Signals: signals},
		cipher, cfg.SignalWait(), log)

	an := analyzer.New(data, log)

	if cfg.Watchdog.Enabled {
		creds := terminal.Credentials{
			Login:    cfg.Terminal.Login,
			Password: cfg.Terminal.Password,
			Server:   cfg.Terminal.Server,
		}
		wd := watchdog.New(process,
			&watchdog.SessionConnector{Manager: manager},
			signals, repo, notifier, creds,
			cfg.WatchdogInterval(), cfg.HeartbeatMaxAge(), log)
		go wd.Run(ctx)
	}

	webServer := web.NewServer(repo, bld, deployer, an, data, process, manager, signals, cipher, notifier, cfg, log)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}
	bld.Wait()

	log.Info("robopilot stopped")
}
