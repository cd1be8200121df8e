package deploy

import (
	"context"

	"github.com/robopilot/robopilot/internal/terminal"
)

// ManagerTerminal adapts the session manager to the coordinator's
// Terminal interface.
type ManagerTerminal struct {
	Manager *terminal.Manager
}

func (t *ManagerTerminal) Acquire(ctx context.Context, creds terminal.Credentials) (Session, error) {
	session, err := t.Manager.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignalConfirmer waits on the executor's READY signal.
type SignalConfirmer struct {
	Signals *terminal.Signals
}

func (c *SignalConfirmer) WaitReady(ctx context.Context, robotID string) error {
	return c.Signals.WaitReady(ctx, robotID)
}
