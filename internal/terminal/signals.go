package terminal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExecutorStatus aggregates the liveness signals one deployed strategy
// executor writes for its robot.
type ExecutorStatus struct {
	RobotID         string   `json:"robot_id"`
	Ready           bool     `json:"ready"`
	HeartbeatActive bool     `json:"heartbeat_active"`
	HeartbeatAge    *float64 `json:"heartbeat_age_seconds,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Signals reads the liveness signals the external strategy executor writes:
// a one-shot ready signal after initialization and a periodically refreshed
// heartbeat timestamp. Both are read-only from this side.
type Signals struct {
	client *Client
	now    func() time.Time
}

func NewSignals(client *Client) *Signals {
	return &Signals{client: client, now: time.Now}
}

func readyKey(robotID string) string     { return "READY_" + robotID }
func heartbeatKey(robotID string) string { return "HEARTBEAT_" + robotID }

// WaitReady polls for the executor's ready signal until it appears or ctx
// expires.
func (s *Signals) WaitReady(ctx context.Context, robotID string) error {
	return s.waitSignal(ctx, readyKey(robotID), "ready")
}

// WaitHeartbeat polls for the heartbeat file under the terminal's shared
// files directory, the secondary liveness channel, until it appears or ctx
// expires.
func (s *Signals) WaitHeartbeat(ctx context.Context, robotID string) error {
	info, err := s.client.TerminalInfo(ctx)
	if err != nil {
		return fmt.Errorf("heartbeat wait: %w", err)
	}
	path := filepath.Join(info.FilesDir, fmt.Sprintf("heartbeat_%s.txt", robotID))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("heartbeat for robot %s not observed (expected %s): %w", robotID, path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Signals) waitSignal(ctx context.Context, key, kind string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, ok, err := s.client.Signal(ctx, key); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("executor %s signal %s not observed: %w", kind, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// CheckAlive reports whether the executor's heartbeat signal is fresher than
// maxAge. The second return value describes the failure.
func (s *Signals) CheckAlive(ctx context.Context, robotID string, maxAge time.Duration) (bool, string) {
	value, ok, err := s.client.Signal(ctx, heartbeatKey(robotID))
	if err != nil {
		return false, fmt.Sprintf("heartbeat read failed: %v", err)
	}
	if !ok {
		return false, "heartbeat signal not found"
	}

	age := s.now().Sub(time.Unix(int64(value), 0))
	if age > maxAge {
		return false, fmt.Sprintf("heartbeat stale (%.0fs old, max %.0fs)", age.Seconds(), maxAge.Seconds())
	}
	return true, fmt.Sprintf("alive (heartbeat %.0fs ago)", age.Seconds())
}

// Status returns the combined ready/heartbeat view for one robot.
func (s *Signals) Status(ctx context.Context, robotID string, maxAge time.Duration) ExecutorStatus {
	status := ExecutorStatus{RobotID: robotID}

	if _, ok, err := s.client.Signal(ctx, readyKey(robotID)); err != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("ready check: %v", err))
	} else if ok {
		status.Ready = true
	} else {
		status.Errors = append(status.Errors, "ready signal not found")
	}

	alive, msg := s.CheckAlive(ctx, robotID, maxAge)
	status.HeartbeatActive = alive
	if alive {
		if value, ok, err := s.client.Signal(ctx, heartbeatKey(robotID)); err == nil && ok {
			age := s.now().Sub(time.Unix(int64(value), 0)).Seconds()
			status.HeartbeatAge = &age
		}
	} else {
		status.Errors = append(status.Errors, msg)
	}
	return status
}
