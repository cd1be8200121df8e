package watchdog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
)

type fakeProcess struct {
	running   bool
	launchErr error
	launches  int
}

func (p *fakeProcess) Running(context.Context) bool { return p.running }

func (p *fakeProcess) Launch(context.Context) error {
	p.launches++
	if p.launchErr != nil {
		return p.launchErr
	}
	p.running = true
	return nil
}

type fakeConnector struct {
	errs   []error // consumed per call, nil once exhausted
	checks int
}

func (c *fakeConnector) Check(context.Context, terminal.Credentials) error {
	c.checks++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

type fakeHeartbeats struct {
	dead map[string]string
}

func (h *fakeHeartbeats) CheckAlive(_ context.Context, robotID string, _ time.Duration) (bool, string) {
	if msg, ok := h.dead[robotID]; ok {
		return false, msg
	}
	return true, "alive"
}

type fakeRobots struct {
	robots []storage.Robot
	events []storage.RobotEvent
}

func (r *fakeRobots) ListActiveRobots() ([]storage.Robot, error) { return r.robots, nil }

func (r *fakeRobots) LogEvent(robotID uint, level, format string, args ...any) error {
	r.events = append(r.events, storage.RobotEvent{RobotID: robotID, Level: level})
	return nil
}

type fakeNotifier struct{ criticals []string }

func (n *fakeNotifier) Critical(msg string) { n.criticals = append(n.criticals, msg) }

func newWatchdog(p *fakeProcess, c *fakeConnector, h *fakeHeartbeats, r *fakeRobots, n *fakeNotifier) *Watchdog {
	if h == nil {
		h = &fakeHeartbeats{}
	}
	if r == nil {
		r = &fakeRobots{}
	}
	return New(p, c, h, r, n, terminal.Credentials{Login: "1"}, 10*time.Second, time.Minute, logger.New("error"))
}

func TestRelaunchesDeadProcess(t *testing.T) {
	process := &fakeProcess{running: false}
	connector := &fakeConnector{}
	w := newWatchdog(process, connector, nil, nil, &fakeNotifier{})

	w.check(context.Background())

	if process.launches != 1 {
		t.Fatalf("launches = %d, want 1", process.launches)
	}
	if !process.running {
		t.Fatal("process not running after recovery")
	}
	if w.Failures() != 0 {
		t.Fatalf("failures = %d, want 0 after successful recovery", w.Failures())
	}
}

func TestFullRecoveryOnBrokenBridge(t *testing.T) {
	process := &fakeProcess{running: true}
	// First check fails, the retry after relaunch succeeds.
	connector := &fakeConnector{errs: []error{errors.New("ipc timeout")}}
	w := newWatchdog(process, connector, nil, nil, &fakeNotifier{})

	w.check(context.Background())

	if process.launches != 1 {
		t.Fatalf("launches = %d, want relaunch during recovery", process.launches)
	}
	if connector.checks != 2 {
		t.Fatalf("connector checks = %d, want 2", connector.checks)
	}
	if w.Failures() != 0 {
		t.Fatalf("failures = %d, want 0", w.Failures())
	}
}

func TestCriticalAlertAfterThreeFailures(t *testing.T) {
	process := &fakeProcess{running: false, launchErr: errors.New("binary missing")}
	notifier := &fakeNotifier{}
	w := newWatchdog(process, &fakeConnector{}, nil, nil, notifier)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.check(ctx)
	}

	if w.Failures() != 5 {
		t.Fatalf("failures = %d, want 5", w.Failures())
	}
	if len(notifier.criticals) != 1 {
		t.Fatalf("criticals = %d, want exactly one alert at the third failure", len(notifier.criticals))
	}
}

func TestFailureCounterResetsOnRecovery(t *testing.T) {
	process := &fakeProcess{running: true}
	connector := &fakeConnector{errs: []error{
		errors.New("down"), errors.New("still down"), // cycle 1: check + recovery retry fail
	}}
	// Force the recovery relaunch to fail too so cycle 1 counts.
	process.launchErr = errors.New("no binary")
	w := newWatchdog(process, connector, nil, nil, &fakeNotifier{})

	ctx := context.Background()
	w.check(ctx)
	if w.Failures() != 1 {
		t.Fatalf("failures = %d, want 1", w.Failures())
	}

	process.launchErr = nil
	w.check(ctx)
	if w.Failures() != 0 {
		t.Fatalf("failures = %d, want reset to 0", w.Failures())
	}
}

func TestDeadHeartbeatRecordsEvent(t *testing.T) {
	process := &fakeProcess{running: true}
	robots := &fakeRobots{robots: []storage.Robot{{ID: 4, Active: true}, {ID: 9, Active: true}}}
	hearts := &fakeHeartbeats{dead: map[string]string{"9": "heartbeat stale"}}
	w := newWatchdog(process, &fakeConnector{}, hearts, robots, &fakeNotifier{})

	w.check(context.Background())

	if len(robots.events) != 1 {
		t.Fatalf("events = %d, want 1", len(robots.events))
	}
	if robots.events[0].RobotID != 9 || robots.events[0].Level != storage.EventWarning {
		t.Errorf("event = %+v", robots.events[0])
	}
	if w.Failures() != 0 {
		t.Error("robot heartbeat loss must not count as terminal failure")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	process := &fakeProcess{running: true}
	w := New(process, &fakeConnector{}, &fakeHeartbeats{}, &fakeRobots{}, nil,
		terminal.Credentials{}, 5*time.Millisecond, time.Minute, logger.New("error"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
