// Package watchdog keeps the live terminal usable: it restarts a dead
// terminal process, re-establishes the bridge connection when IPC goes
// stale and reports robot executors that stop heartbeating. Check failures
// are logged and counted, never propagated; after three consecutive
// unhealthy cycles a critical alert goes out.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
)

const criticalAfter = 3

// Process controls the terminal's operating system process.
type Process interface {
	Running(ctx context.Context) bool
	Launch(ctx context.Context) error
}

// Connector probes and re-establishes the authorized bridge connection.
type Connector interface {
	Check(ctx context.Context, creds terminal.Credentials) error
}

// Heartbeats reports whether a robot's executor is still alive.
type Heartbeats interface {
	CheckAlive(ctx context.Context, robotID string, maxAge time.Duration) (bool, string)
}

// RobotSource lists the robots that should be heartbeating and records
// their timeline events.
type RobotSource interface {
	ListActiveRobots() ([]storage.Robot, error)
	LogEvent(robotID uint, level, format string, args ...any) error
}

// Notifier delivers critical alerts to the operator.
type Notifier interface {
	Critical(msg string)
}

type Watchdog struct {
	process    Process
	connector  Connector
	heartbeats Heartbeats
	robots     RobotSource
	notifier   Notifier
	log        *logger.Logger

	creds           terminal.Credentials
	interval        time.Duration
	heartbeatMaxAge time.Duration

	failures int
}

func New(process Process, connector Connector, heartbeats Heartbeats, robots RobotSource, notifier Notifier, creds terminal.Credentials, interval, heartbeatMaxAge time.Duration, log *logger.Logger) *Watchdog {
	return &Watchdog{
		process:         process,
		connector:       connector,
		heartbeats:      heartbeats,
		robots:          robots,
		notifier:        notifier,
		creds:           creds,
		interval:        interval,
		heartbeatMaxAge: heartbeatMaxAge,
		log:             log,
	}
}

// Run checks terminal health on a fixed interval until the context ends.
func (w *Watchdog) Run(ctx context.Context) {
	w.log.Infof("watchdog: started, interval %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Infof("watchdog: stopped")
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one health cycle. All failures end up in the consecutive
// failure counter instead of escaping.
func (w *Watchdog) check(ctx context.Context) {
	if err := w.checkOnce(ctx); err != nil {
		w.failures++
		w.log.Errorf("watchdog: unhealthy (%d consecutive): %v", w.failures, err)
		if w.failures == criticalAfter && w.notifier != nil {
			w.notifier.Critical(fmt.Sprintf("terminal unhealthy for %d consecutive checks: %v", w.failures, err))
		}
		return
	}
	w.failures = 0
	w.checkRobots(ctx)
}

func (w *Watchdog) checkOnce(ctx context.Context) error {
	if !w.process.Running(ctx) {
		w.log.Errorf("watchdog: terminal process not running, relaunching")
		if err := w.process.Launch(ctx); err != nil {
			return fmt.Errorf("relaunch terminal: %w", err)
		}
		w.log.Infof("watchdog: terminal relaunched")
	}

	if err := w.connector.Check(ctx, w.creds); err != nil {
		// The process answers pings but the authorized connection is
		// broken. Restart the terminal and re-authorize from scratch.
		w.log.Errorf("watchdog: bridge unhealthy, full recovery: %v", err)
		if err := w.process.Launch(ctx); err != nil {
			return fmt.Errorf("recovery relaunch: %w", err)
		}
		if err := w.connector.Check(ctx, w.creds); err != nil {
			return fmt.Errorf("recovery reconnect: %w", err)
		}
		w.log.Infof("watchdog: connection recovered")
	}
	return nil
}

// checkRobots verifies each active robot's executor heartbeat. A stale
// heartbeat is a per-robot problem, not a terminal failure, so it only
// produces a timeline event.
func (w *Watchdog) checkRobots(ctx context.Context) {
	robots, err := w.robots.ListActiveRobots()
	if err != nil {
		w.log.Errorf("watchdog: list active robots: %v", err)
		return
	}
	for _, robot := range robots {
		alive, detail := w.heartbeats.CheckAlive(ctx, fmt.Sprintf("%d", robot.ID), w.heartbeatMaxAge)
		if !alive {
			w.log.Errorf("watchdog: robot %d executor dead: %s", robot.ID, detail)
			if err := w.robots.LogEvent(robot.ID, storage.EventWarning, "executor heartbeat lost: %s", detail); err != nil {
				w.log.Errorf("watchdog: record event: %v", err)
			}
		}
	}
}

// Failures returns the current consecutive failure count.
func (w *Watchdog) Failures() int { return w.failures }
