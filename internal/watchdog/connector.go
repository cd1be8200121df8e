package watchdog

import (
	"context"
	"fmt"

	"github.com/robopilot/robopilot/internal/terminal"
)

// SessionConnector probes the bridge by opening a short-lived authorized
// session. Acquiring revokes any stale session, so a successful check also
// doubles as the re-authorization step of a recovery.
type SessionConnector struct {
	Manager *terminal.Manager
}

func (c *SessionConnector) Check(ctx context.Context, creds terminal.Credentials) error {
	session, err := c.Manager.Acquire(ctx, creds)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	if _, err := session.Account(ctx); err != nil {
		return err
	}
	info, err := session.TerminalInfo(ctx)
	if err != nil {
		return err
	}
	if !info.Connected {
		return fmt.Errorf("terminal disconnected from broker")
	}
	return nil
}
