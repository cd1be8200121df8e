package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robopilot/robopilot/internal/analyzer"
	"github.com/robopilot/robopilot/internal/builder"
	"github.com/robopilot/robopilot/internal/config"
	"github.com/robopilot/robopilot/internal/deploy"
	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/notify"
	"github.com/robopilot/robopilot/internal/secret"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
)

type Server struct {
	httpServer *http.Server
	repo       *storage.Repository
	builder    *builder.Builder
	deployer   *deploy.Coordinator
	analyzer   *analyzer.Analyzer
	data       *histdata.Service
	process    *terminal.ProcessManager
	manager    *terminal.Manager
	signals    *terminal.Signals
	cipher     *secret.Cipher
	notifier   *notify.Notifier
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(repo *storage.Repository, bld *builder.Builder, dep *deploy.Coordinator, an *analyzer.Analyzer, data *histdata.Service, process *terminal.ProcessManager, manager *terminal.Manager, signals *terminal.Signals, cipher *secret.Cipher, notifier *notify.Notifier, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		repo:     repo,
		builder:  bld,
		deployer: dep,
		analyzer: an,
		data:     data,
		process:  process,
		manager:  manager,
		signals:  signals,
		cipher:   cipher,
		notifier: notifier,
		config:   cfg,
		logger:   log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/robots", s.handleCreateRobot)
	mux.HandleFunc("GET /api/robots", s.handleListRobots)
	mux.HandleFunc("GET /api/robots/{id}", s.handleGetRobot)
	mux.HandleFunc("POST /api/robots/{id}/rebuild", s.handleRebuild)
	mux.HandleFunc("POST /api/robots/{id}/deploy", s.handleDeploy)
	mux.HandleFunc("POST /api/robots/{id}/start-trade", s.handleStartTrade)
	mux.HandleFunc("POST /api/robots/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/robots/{id}/rollback", s.handleRollback)
	mux.HandleFunc("GET /api/robots/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/robots/{id}/executor", s.handleExecutor)
	mux.HandleFunc("GET /api/builds/{id}", s.handleGetBuild)
	mux.HandleFunc("GET /api/terminal/status", s.handleTerminalStatus)
	mux.HandleFunc("GET /api/account", s.handleAccount)
	mux.HandleFunc("GET /api/data/health", s.handleDataHealth)
	return mux
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
