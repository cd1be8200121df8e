// Package builder runs the robot build pipeline on a bounded worker pool:
// acquire history, backtest the ruleset, snapshot the validated strategy
// and publish the metrics onto the robot.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/robopilot/robopilot/internal/backtest"
	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
)

// ErrQueueFull is returned when the build queue has no room. Callers
// surface it to the user instead of blocking the request.
var ErrQueueFull = errors.New("builder: build queue full")

// Store is the subset of the repository the builder needs.
type Store interface {
	GetRobot(id uint) (*storage.Robot, error)
	UpdateRobot(robot *storage.Robot) error
	SaveBuildTask(task *storage.BuildTask) error
	UpdateBuildTask(task *storage.BuildTask) error
	GetBuildTask(id string) (*storage.BuildTask, error)
	SaveVersion(v *storage.StrategyVersion) error
	NextVersion(robotID uint) (int, error)
	SaveFetchReport(report *storage.FetchReport) error
	LogEvent(robotID uint, level, format string, args ...any) error
}

// Fetcher supplies historical candles through the fallback chain.
type Fetcher interface {
	Fetch(ctx context.Context, req histdata.Request) ([]market.Candle, *histdata.Report, error)
}

// Decryptor recovers the robot's account password for the live source.
type Decryptor interface {
	Decrypt(encoded string) (string, error)
}

// Notifier pushes build outcomes to the operator. Optional.
type Notifier interface {
	NotifyBuildComplete(name string, winRate float64, trades int, source string)
	NotifyBuildFailed(name string, err error)
}

// Reviewer produces an advisory commentary on a finished backtest. Optional.
type Reviewer interface {
	Review(ctx context.Context, name, rulesJSON string, metrics backtest.Metrics) (string, error)
}

type job struct {
	taskID  string
	robotID uint
}

type Builder struct {
	store     Store
	data      Fetcher
	decryptor Decryptor
	notifier  Notifier
	reviewer  Reviewer
	log       *logger.Logger

	workers int
	queue   chan job
	wg      sync.WaitGroup
}

func New(store Store, data Fetcher, decryptor Decryptor, workers, queueSize int, log *logger.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Builder{
		store:     store,
		data:      data,
		decryptor: decryptor,
		log:       log,
		workers:   workers,
		queue:     make(chan job, queueSize),
	}
}

// WithNotifier enables operator notifications for build outcomes.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithReviewer enables the advisory strategy commentary after a build.
func (b *Builder) WithReviewer(r Reviewer) *Builder {
	b.reviewer = r
	return b
}

// Start launches the worker pool. Workers drain the queue until the
// context is cancelled.
func (b *Builder) Start(ctx context.Context) {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-b.queue:
					b.process(ctx, j)
				}
			}
		}()
	}
	b.log.Infof("builder: %d workers started, queue size %d", b.workers, cap(b.queue))
}

// Wait blocks until all workers have exited.
func (b *Builder) Wait() { b.wg.Wait() }

// Enqueue creates a PENDING build task for the robot and hands it to the
// pool. The task row exists before this returns, so the caller can poll it.
func (b *Builder) Enqueue(robotID uint) (*storage.BuildTask, error) {
	task := &storage.BuildTask{
		ID:      uuid.NewString(),
		RobotID: robotID,
		Status:  storage.BuildStatusPending,
	}
	if err := b.store.SaveBuildTask(task); err != nil {
		return nil, fmt.Errorf("builder: create task: %w", err)
	}
	select {
	case b.queue <- job{taskID: task.ID, robotID: robotID}:
		return task, nil
	default:
		task.Status = storage.BuildStatusFailed
		task.Error = ErrQueueFull.Error()
		if err := b.store.UpdateBuildTask(task); err != nil {
			b.log.Errorf("builder: mark task %s failed: %v", task.ID, err)
		}
		return nil, ErrQueueFull
	}
}

// process runs one build with panic recovery. A panicking pipeline marks
// the task FAILED instead of killing the worker.
func (b *Builder) process(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("builder: task %s panicked: %v", j.taskID, r)
			b.fail(j, fmt.Errorf("build panicked: %v", r))
		}
	}()
	if err := b.build(ctx, j); err != nil {
		b.fail(j, err)
	}
}

func (b *Builder) build(ctx context.Context, j job) error {
	robot, err := b.store.GetRobot(j.robotID)
	if err != nil {
		return fmt.Errorf("load robot %d: %w", j.robotID, err)
	}

	task, err := b.store.GetBuildTask(j.taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", j.taskID, err)
	}
	task.Status = storage.BuildStatusBuilding
	logLines := []string{"build started"}
	b.progress(task, 10, logLines)

	robot.Status = storage.RobotStatusBuilding
	if err := b.store.UpdateRobot(robot); err != nil {
		return fmt.Errorf("mark robot building: %w", err)
	}

	var rules backtest.RuleSet
	if robot.RulesJSON != "" {
		if err := json.Unmarshal([]byte(robot.RulesJSON), &rules); err != nil {
			return fmt.Errorf("parse rules: %w", err)
		}
	}
	rules.ApplyDefaults()

	candles, report, err := b.data.Fetch(ctx, histdata.Request{
		Symbol:         robot.Symbol,
		Timeframe:      market.Timeframe(robot.Timeframe),
		LookbackMonths: robot.LookbackMonths,
		AllowFallback:  true,
		Account:        b.account(robot),
	})
	if report != nil {
		b.saveReport(robot.ID, report, robot)
	}
	if err != nil {
		return fmt.Errorf("acquire history: %w", err)
	}
	logLines = append(logLines, fmt.Sprintf("fetched %d candles from %s", len(candles), report.Source))
	b.progress(task, 50, logLines)

	trades := backtest.Run(candles, rules)
	metrics := backtest.ComputeMetrics(trades)
	logLines = append(logLines,
		fmt.Sprintf("backtest: %d trades, win rate %.2f%%", metrics.TotalTrades, metrics.WinRate))
	b.progress(task, 80, logLines)

	version, err := b.snapshot(robot, rules, metrics, report)
	if err != nil {
		return err
	}

	robot.WinRate = metrics.WinRate
	robot.TotalProfit = metrics.TotalProfit
	robot.TotalTrades = metrics.TotalTrades
	robot.DataSource = string(report.Source)
	robot.ActiveVersion = version
	robot.Status = storage.RobotStatusReady
	if err := b.store.UpdateRobot(robot); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}

	task.Status = storage.BuildStatusComplete
	logLines = append(logLines, "build complete")
	task.Progress = 100
	task.Log = strings.Join(logLines, "\n")
	if err := b.store.UpdateBuildTask(task); err != nil {
		b.log.Errorf("builder: finalize task %s: %v", task.ID, err)
	}
	b.store.LogEvent(robot.ID, storage.EventInfo,
		"build complete: win rate %.2f%% over %d trades (%s)", metrics.WinRate, metrics.TotalTrades, report.Source)
	if b.notifier != nil {
		b.notifier.NotifyBuildComplete(robot.Name, metrics.WinRate, metrics.TotalTrades, string(report.Source))
	}
	if b.reviewer != nil {
		if commentary, err := b.reviewer.Review(ctx, robot.Name, robot.RulesJSON, metrics); err != nil {
			b.log.Errorf("builder: strategy review for robot %d: %v", robot.ID, err)
		} else {
			b.store.LogEvent(robot.ID, storage.EventInfo, "strategy review: %s", commentary)
		}
	}
	b.log.Infof("builder: task %s complete for robot %d", task.ID, robot.ID)
	return nil
}

// snapshot persists an immutable strategy version and returns its row ID.
func (b *Builder) snapshot(robot *storage.Robot, rules backtest.RuleSet, metrics backtest.Metrics, report *histdata.Report) (uint, error) {
	next, err := b.store.NextVersion(robot.ID)
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return 0, fmt.Errorf("marshal rules: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return 0, fmt.Errorf("marshal metrics: %w", err)
	}
	v := &storage.StrategyVersion{
		RobotID:     robot.ID,
		Version:     next,
		RulesJSON:   string(rulesJSON),
		MetricsJSON: string(metricsJSON),
		WinRate:     metrics.WinRate,
		DataSource:  string(report.Source),
		CandleCount: report.CandleCount,
		Lot:         robot.Lot,
		StopLoss:    robot.StopLoss,
		TakeProfit:  robot.TakeProfit,
	}
	if err := b.store.SaveVersion(v); err != nil {
		return 0, fmt.Errorf("save version: %w", err)
	}
	return v.ID, nil
}

func (b *Builder) saveReport(robotID uint, report *histdata.Report, robot *storage.Robot) {
	errsJSON, _ := json.Marshal(report.Errors)
	row := &storage.FetchReport{
		RobotID:     robotID,
		Symbol:      robot.Symbol,
		Timeframe:   robot.Timeframe,
		Status:      string(report.Status),
		DataSource:  string(report.Source),
		CandleCount: report.CandleCount,
		ErrorsJSON:  string(errsJSON),
		Warnings:    strings.Join(report.Warnings, "\n"),
	}
	if err := b.store.SaveFetchReport(row); err != nil {
		b.log.Errorf("builder: save fetch report: %v", err)
	}
}

func (b *Builder) account(robot *storage.Robot) *terminal.Credentials {
	if robot.EncryptedPassword == "" || b.decryptor == nil {
		return nil
	}
	password, err := b.decryptor.Decrypt(robot.EncryptedPassword)
	if err != nil {
		b.log.Errorf("builder: decrypt credentials for robot %d: %v", robot.ID, err)
		return nil
	}
	return &terminal.Credentials{
		Login:    robot.AccountLogin,
		Password: password,
		Server:   robot.AccountServer,
	}
}

func (b *Builder) progress(task *storage.BuildTask, pct int, logLines []string) {
	task.Progress = pct
	task.Log = strings.Join(logLines, "\n")
	if err := b.store.UpdateBuildTask(task); err != nil {
		b.log.Errorf("builder: update task %s: %v", task.ID, err)
	}
}

// fail marks the task and robot as failed and records the error.
func (b *Builder) fail(j job, cause error) {
	task, err := b.store.GetBuildTask(j.taskID)
	if err != nil {
		b.log.Errorf("builder: load failed task %s: %v", j.taskID, err)
		task = &storage.BuildTask{ID: j.taskID, RobotID: j.robotID}
	}
	task.Status = storage.BuildStatusFailed
	task.Error = cause.Error()
	if err := b.store.UpdateBuildTask(task); err != nil {
		b.log.Errorf("builder: persist failed task %s: %v", j.taskID, err)
	}
	if robot, err := b.store.GetRobot(j.robotID); err == nil {
		robot.Status = storage.RobotStatusError
		if err := b.store.UpdateRobot(robot); err != nil {
			b.log.Errorf("builder: mark robot %d errored: %v", j.robotID, err)
		}
		if b.notifier != nil {
			b.notifier.NotifyBuildFailed(robot.Name, cause)
		}
	}
	b.store.LogEvent(j.robotID, storage.EventError, "build failed: %v", cause)
	b.log.Errorf("builder: task %s failed: %v", j.taskID, cause)
}
