package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/robopilot/robopilot/internal/analyzer"
	"github.com/robopilot/robopilot/internal/backtest"
	"github.com/robopilot/robopilot/internal/builder"
	"github.com/robopilot/robopilot/internal/deploy"
	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
)

type createRobotRequest struct {
	Name                string          `json:"name"`
	Symbol              string          `json:"symbol"`
	Timeframe           string          `json:"timeframe"`
	Rules               json.RawMessage `json:"rules"`
	LookbackMonths      int             `json:"lookback_months"`
	RecencyBias         float64         `json:"recency_bias"`
	SessionPreference   string          `json:"session_preference"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	MaxEntryWaitMin     int             `json:"max_entry_wait_min"`
	Lot                 float64         `json:"lot"`
	StopLoss            int             `json:"stop_loss"`
	TakeProfit          int             `json:"take_profit"`
	AccountLogin        string          `json:"account_login"`
	AccountPassword     string          `json:"account_password"`
	AccountServer       string          `json:"account_server"`
}

func (s *Server) handleCreateRobot(w http.ResponseWriter, r *http.Request) {
	var req createRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "name and symbol are required")
		return
	}
	if !market.Timeframe(req.Timeframe).Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown timeframe %q", req.Timeframe))
		return
	}
	if req.Lot < 0 || req.StopLoss < 0 || req.TakeProfit < 0 {
		s.writeError(w, http.StatusBadRequest, "risk settings must not be negative")
		return
	}
	var rules backtest.RuleSet
	if len(req.Rules) > 0 {
		if err := json.Unmarshal(req.Rules, &rules); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid rules: "+err.Error())
			return
		}
	}

	robot := &storage.Robot{
		Name:                req.Name,
		Symbol:              req.Symbol,
		Timeframe:           req.Timeframe,
		Status:              storage.RobotStatusDraft,
		RulesJSON:           string(req.Rules),
		LookbackMonths:      req.LookbackMonths,
		RecencyBias:         req.RecencyBias,
		SessionPreference:   req.SessionPreference,
		ConfidenceThreshold: req.ConfidenceThreshold,
		MaxEntryWaitMin:     req.MaxEntryWaitMin,
		Lot:                 req.Lot,
		StopLoss:            req.StopLoss,
		TakeProfit:          req.TakeProfit,
		AccountLogin:        req.AccountLogin,
		AccountServer:       req.AccountServer,
	}
	if robot.LookbackMonths == 0 {
		robot.LookbackMonths = 6
	}
	if robot.SessionPreference == "" {
		robot.SessionPreference = analyzer.SessionAny
	}
	if robot.ConfidenceThreshold == 0 {
		robot.ConfidenceThreshold = 0.6
	}
	if robot.MaxEntryWaitMin == 0 {
		robot.MaxEntryWaitMin = 240
	}
	if robot.Lot == 0 {
		robot.Lot = 0.01
	}
	if robot.StopLoss == 0 {
		robot.StopLoss = 30
	}
	if robot.TakeProfit == 0 {
		robot.TakeProfit = 60
	}
	if req.AccountPassword != "" {
		sealed, err := s.cipher.Encrypt(req.AccountPassword)
		if err != nil {
			s.logger.Error("encrypt account password", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to store credentials")
			return
		}
		robot.EncryptedPassword = sealed
	}

	if err := s.repo.SaveRobot(robot); err != nil {
		s.logger.Error("create robot", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create robot")
		return
	}
	s.repo.LogEvent(robot.ID, storage.EventInfo, "robot created for %s %s", robot.Symbol, robot.Timeframe)

	// Creating a robot kicks off its first build immediately; the caller
	// polls the returned task for progress.
	resp := map[string]any{"robot": robot}
	task, err := s.builder.Enqueue(robot.ID)
	if err != nil {
		s.logger.Error("enqueue initial build", "robot", robot.ID, "error", err)
		s.repo.LogEvent(robot.ID, storage.EventWarning, "initial build not queued: %v", err)
		resp["build_error"] = err.Error()
	} else {
		resp["build"] = task
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := s.repo.ListRobots()
	if err != nil {
		s.logger.Error("list robots", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list robots")
		return
	}
	s.writeJSON(w, http.StatusOK, robots)
}

func (s *Server) handleGetRobot(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, robot)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	task, err := s.builder.Enqueue(robot.ID)
	if errors.Is(err, builder.ErrQueueFull) {
		s.writeError(w, http.StatusTooManyRequests, "build queue full, retry later")
		return
	}
	if err != nil {
		s.logger.Error("enqueue build", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to queue build")
		return
	}
	s.writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	if robot.Status != storage.RobotStatusReady && robot.Status != storage.RobotStatusDeployed && robot.Status != storage.RobotStatusStopped {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("robot is %s, build it first", robot.Status))
		return
	}
	if err := s.deployer.Deploy(r.Context(), robot); err != nil {
		var pf *deploy.PhaseFailure
		if errors.As(err, &pf) {
			s.writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": pf.Err.Error(),
				"phase": pf.Phase,
			})
			return
		}
		s.logger.Error("deploy robot", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "deployment failed")
		return
	}
	s.notifier.NotifyDeployed(robot.Name, robot.Symbol)
	phases, err := s.repo.LatestDeployment(robot.ID)
	if err != nil {
		phases = nil
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"robot":  robot,
		"phases": phases,
	})
}

func (s *Server) handleStartTrade(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	if !robot.Active {
		s.writeError(w, http.StatusConflict, "robot is not deployed")
		return
	}

	cfg := analyzer.Config{
		Symbol:              robot.Symbol,
		Timeframe:           market.Timeframe(robot.Timeframe),
		LookbackMonths:      robot.LookbackMonths,
		RecencyBias:         robot.RecencyBias,
		SessionPreference:   robot.SessionPreference,
		ConfidenceThreshold: robot.ConfidenceThreshold,
		MaxEntryWait:        time.Duration(robot.MaxEntryWaitMin) * time.Minute,
	}
	req := histdata.Request{
		Symbol:         robot.Symbol,
		Timeframe:      cfg.Timeframe,
		LookbackMonths: robot.LookbackMonths,
		AllowFallback:  s.config.Data.AllowFallback,
		Account:        s.robotCredentials(robot),
	}
	decision, report, err := s.analyzer.Run(r.Context(), cfg, req)
	if report != nil {
		s.saveFetchReport(robot, report)
	}
	if err != nil {
		var exhausted *histdata.AllSourcesExhausted
		if errors.As(err, &exhausted) {
			s.writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":   exhausted.Error(),
				"errors":  exhausted.Errors,
				"actions": exhausted.Actions,
			})
			return
		}
		s.logger.Error("analyze robot", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	decisionJSON, _ := json.Marshal(decision)
	robot.LastDecision = string(decisionJSON)
	robot.LastDecisionAt = time.Now().UTC()
	robot.Status = storage.RobotStatusTrading
	if err := s.repo.UpdateRobot(robot); err != nil {
		s.logger.Error("update robot decision", "robot", robot.ID, "error", err)
	}
	if decision.Status == analyzer.StatusOrderPlaced {
		s.repo.LogEvent(robot.ID, storage.EventInfo, "placed %s at %.5f (confidence %.2f)",
			decision.Order, decision.Entry, decision.Confidence)
	} else {
		s.repo.LogEvent(robot.ID, storage.EventInfo, "idle: %s", decision.Reason)
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	robot.Active = false
	robot.Status = storage.RobotStatusStopped
	if err := s.repo.UpdateRobot(robot); err != nil {
		s.logger.Error("stop robot", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to stop robot")
		return
	}
	s.repo.LogEvent(robot.ID, storage.EventInfo, "robot stopped")
	s.notifier.NotifyStopped(robot.Name)
	s.writeJSON(w, http.StatusOK, robot)
}

type rollbackRequest struct {
	Version int `json:"version"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version < 1 {
		s.writeError(w, http.StatusBadRequest, "version is required")
		return
	}
	version, err := s.repo.GetVersion(robot.ID, req.Version)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("version %d not found", req.Version))
		return
	}
	if err != nil {
		s.logger.Error("load version", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load version")
		return
	}

	robot.RulesJSON = version.RulesJSON
	robot.WinRate = version.WinRate
	robot.DataSource = version.DataSource
	robot.Lot = version.Lot
	robot.StopLoss = version.StopLoss
	robot.TakeProfit = version.TakeProfit
	robot.ActiveVersion = version.ID
	robot.Status = storage.RobotStatusReady
	if err := s.repo.UpdateRobot(robot); err != nil {
		s.logger.Error("rollback robot", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to roll back")
		return
	}
	s.repo.LogEvent(robot.ID, storage.EventInfo, "rolled back to strategy version %d", version.Version)
	s.writeJSON(w, http.StatusOK, robot)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events, err := s.repo.ListEvents(robot.ID, limit)
	if err != nil {
		s.logger.Error("list events", "robot", robot.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleExecutor(w http.ResponseWriter, r *http.Request) {
	robot, ok := s.loadRobot(w, r)
	if !ok {
		return
	}
	status := s.signals.Status(r.Context(), fmt.Sprintf("%d", robot.ID), s.config.HeartbeatMaxAge())
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	task, err := s.repo.GetBuildTask(r.PathValue("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.writeError(w, http.StatusNotFound, "build not found")
		return
	}
	if err != nil {
		s.logger.Error("load build task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load build")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTerminalStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"process_running": s.process.Running(r.Context()),
	}
	info, err := s.manager.Client().TerminalInfo(r.Context())
	if err != nil {
		out["bridge"] = "unreachable"
		out["error"] = err.Error()
	} else {
		out["bridge"] = "ok"
		out["connected"] = info.Connected
		out["files_dir"] = info.FilesDir
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	creds := terminal.Credentials{
		Login:    s.config.Terminal.Login,
		Password: s.config.Terminal.Password,
		Server:   s.config.Terminal.Server,
	}
	if creds.Login == "" {
		s.writeError(w, http.StatusNotFound, "no terminal account configured")
		return
	}
	session, err := s.manager.Acquire(r.Context(), creds)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer session.Close(r.Context())
	account, err := session.Account(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleDataHealth(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	var account *terminal.Credentials
	if s.config.Terminal.Login != "" {
		account = &terminal.Credentials{
			Login:    s.config.Terminal.Login,
			Password: s.config.Terminal.Password,
			Server:   s.config.Terminal.Server,
		}
	}
	health := s.data.Health(r.Context(), symbol, account)
	s.writeJSON(w, http.StatusOK, health)
}

// loadRobot resolves the {id} path segment, writing the error response
// itself when the robot cannot be served.
func (s *Server) loadRobot(w http.ResponseWriter, r *http.Request) (*storage.Robot, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid robot id")
		return nil, false
	}
	robot, err := s.repo.GetRobot(uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.writeError(w, http.StatusNotFound, "robot not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("load robot", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load robot")
		return nil, false
	}
	return robot, true
}

// saveFetchReport records the acquisition outcome as an audit row. Every
// fetch attempt leaves one, whether it succeeded or not.
func (s *Server) saveFetchReport(robot *storage.Robot, report *histdata.Report) {
	errsJSON, _ := json.Marshal(report.Errors)
	row := &storage.FetchReport{
		RobotID:     robot.ID,
		Symbol:      robot.Symbol,
		Timeframe:   robot.Timeframe,
		Status:      string(report.Status),
		DataSource:  string(report.Source),
		CandleCount: report.CandleCount,
		ErrorsJSON:  string(errsJSON),
		Warnings:    strings.Join(report.Warnings, "\n"),
	}
	if err := s.repo.SaveFetchReport(row); err != nil {
		s.logger.Error("save fetch report", "robot", robot.ID, "error", err)
	}
}

func (s *Server) robotCredentials(robot *storage.Robot) *terminal.Credentials {
	if robot.EncryptedPassword == "" {
		return nil
	}
	password, err := s.cipher.Decrypt(robot.EncryptedPassword)
	if err != nil {
		s.logger.Error("decrypt robot credentials", "robot", robot.ID, "error", err)
		return nil
	}
	return &terminal.Credentials{
		Login:    robot.AccountLogin,
		Password: password,
		Server:   robot.AccountServer,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
