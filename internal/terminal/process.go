package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
)

// ProcessManager supervises the external terminal process. Liveness is
// judged by the bridge answering pings, since the bridge runs inside the
// terminal.
type ProcessManager struct {
	binaryPath string
	client     *Client
	logger     *logger.Logger
}

func NewProcessManager(binaryPath string, client *Client, log *logger.Logger) *ProcessManager {
	return &ProcessManager{binaryPath: binaryPath, client: client, logger: log}
}

// Running reports whether the terminal process answers.
func (p *ProcessManager) Running(ctx context.Context) bool {
	return p.client.Ping(ctx) == nil
}

// Launch starts the terminal binary and waits, bounded by ctx, until the
// bridge answers.
func (p *ProcessManager) Launch(ctx context.Context) error {
	if p.binaryPath == "" {
		return fmt.Errorf("terminal binary path not configured")
	}
	if _, err := os.Stat(p.binaryPath); err != nil {
		return fmt.Errorf("terminal binary not found at %s: %w", p.binaryPath, err)
	}

	p.logger.Info("launching terminal", "path", p.binaryPath)
	cmd := exec.Command(p.binaryPath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	// The terminal outlives us; reap it in the background so it never
	// becomes a zombie while we run.
	go func() { _ = cmd.Wait() }()

	return p.waitForPing(ctx)
}

func (p *ProcessManager) waitForPing(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if p.client.Ping(ctx) == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("terminal did not come up: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
