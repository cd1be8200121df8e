// Package deploy moves a built robot onto a live terminal in three phases:
// preflight checks, artifact injection and executor confirmation. Every
// phase is written to storage before it runs, so an interrupted deployment
// leaves a truthful trail.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/storage"
	"github.com/robopilot/robopilot/internal/terminal"
)

// PhaseFailure reports which deployment phase failed.
type PhaseFailure struct {
	Phase string
	Err   error
}

func (e *PhaseFailure) Error() string {
	return fmt.Sprintf("deployment phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseFailure) Unwrap() error { return e.Err }

// Store is the subset of the repository the coordinator needs.
type Store interface {
	SavePhase(*storage.DeploymentPhase) error
	UpdatePhase(*storage.DeploymentPhase) error
	UpdateRobot(*storage.Robot) error
	LogEvent(robotID uint, level, format string, args ...any) error
}

// Session is one authorized terminal connection scoped to a deployment.
type Session interface {
	Account(ctx context.Context) (*terminal.AccountInfo, error)
	TerminalInfo(ctx context.Context) (*terminal.Info, error)
	ResolveSymbol(ctx context.Context, symbol string) (string, error)
	Close(ctx context.Context) error
}

// Terminal opens sessions against the live trading terminal.
type Terminal interface {
	Acquire(ctx context.Context, creds terminal.Credentials) (Session, error)
}

// Generator renders a robot's strategy and credentials into the opaque
// artifact the terminal-side executor loads.
type Generator interface {
	Generate(ctx context.Context, spec InjectionSpec) (Artifact, error)
}

// Confirmer waits for the executor's ready signal after injection.
type Confirmer interface {
	WaitReady(ctx context.Context, robotID string) error
}

// Decryptor recovers the plaintext account password. Implemented by the
// credential cipher; the coordinator never stores the result.
type Decryptor interface {
	Decrypt(encoded string) (string, error)
}

// InjectionSpec is everything the generator needs to render an artifact.
type InjectionSpec struct {
	RobotID     uint
	Symbol      string // resolved broker symbol
	RulesJSON   string
	Lot         float64
	StopLoss    int // points
	TakeProfit  int // points
	Credentials terminal.Credentials
	FilesDir    string
}

// Artifact locates a rendered deployment payload.
type Artifact struct {
	Path string
}

type Coordinator struct {
	store     Store
	terminal  Terminal
	generator Generator
	confirmer Confirmer
	decryptor Decryptor
	log       *logger.Logger

	confirmWait time.Duration
}

func NewCoordinator(store Store, term Terminal, gen Generator, conf Confirmer, dec Decryptor, confirmWait time.Duration, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		terminal:    term,
		generator:   gen,
		confirmer:   conf,
		decryptor:   dec,
		log:         log,
		confirmWait: confirmWait,
	}
}

// Deploy runs the full three-phase sequence for the robot. A preflight or
// injection failure aborts and leaves the robot inactive. A confirmation
// failure is downgraded to a warning: the artifact is already on the
// terminal, so the robot is activated and the executor is left to the
// watchdog to observe.
func (c *Coordinator) Deploy(ctx context.Context, robot *storage.Robot) error {
	creds, err := c.credentials(robot)
	if err != nil {
		return c.failPhase(robot, PhasePending(robot.ID, storage.PhasePreflight), err)
	}

	// Phase 1: preflight.
	pre := PhasePending(robot.ID, storage.PhasePreflight)
	if err := c.store.SavePhase(pre); err != nil {
		return fmt.Errorf("deploy: record preflight: %w", err)
	}
	session, resolved, filesDir, err := c.preflight(ctx, creds, robot.Symbol)
	if err != nil {
		return c.failPhase(robot, pre, err)
	}
	defer session.Close(ctx)
	c.completePhase(pre, fmt.Sprintf("symbol %s, trading allowed", resolved))

	// Phase 2: injection.
	inj := PhasePending(robot.ID, storage.PhaseInjection)
	if err := c.store.SavePhase(inj); err != nil {
		return fmt.Errorf("deploy: record injection: %w", err)
	}
	artifact, err := c.generator.Generate(ctx, InjectionSpec{
		RobotID:     robot.ID,
		Symbol:      resolved,
		RulesJSON:   robot.RulesJSON,
		Lot:         robot.Lot,
		StopLoss:    robot.StopLoss,
		TakeProfit:  robot.TakeProfit,
		Credentials: creds,
		FilesDir:    filesDir,
	})
	creds.Password = ""
	if err != nil {
		return c.failPhase(robot, inj, err)
	}
	c.completePhase(inj, "artifact "+artifact.Path)

	// Phase 3: confirmation.
	conf := PhasePending(robot.ID, storage.PhaseConfirmation)
	if err := c.store.SavePhase(conf); err != nil {
		return fmt.Errorf("deploy: record confirmation: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmWait)
	confirmErr := c.confirmer.WaitReady(waitCtx, fmt.Sprintf("%d", robot.ID))
	cancel()
	if confirmErr != nil {
		conf.Status = storage.PhaseStatusWarning
		conf.Detail = confirmErr.Error()
		if err := c.store.UpdatePhase(conf); err != nil {
			c.log.Errorf("deploy: update confirmation phase: %v", err)
		}
		c.store.LogEvent(robot.ID, storage.EventWarning,
			"executor did not confirm readiness: %v", confirmErr)
		c.log.Errorf("deploy: robot %d confirmation: %v", robot.ID, confirmErr)
	} else {
		c.completePhase(conf, "executor ready")
	}

	robot.Active = true
	robot.Status = storage.RobotStatusDeployed
	if err := c.store.UpdateRobot(robot); err != nil {
		return fmt.Errorf("deploy: activate robot %d: %w", robot.ID, err)
	}
	c.store.LogEvent(robot.ID, storage.EventInfo, "deployed to terminal as %s", resolved)
	return nil
}

// preflight verifies the account is reachable, the symbol tradable and the
// terminal willing to trade before anything touches the terminal's files.
func (c *Coordinator) preflight(ctx context.Context, creds terminal.Credentials, symbol string) (Session, string, string, error) {
	session, err := c.terminal.Acquire(ctx, creds)
	if err != nil {
		return nil, "", "", fmt.Errorf("acquire session: %w", err)
	}
	resolved, err := session.ResolveSymbol(ctx, symbol)
	if err != nil {
		session.Close(ctx)
		return nil, "", "", err
	}
	account, err := session.Account(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, "", "", fmt.Errorf("query account: %w", err)
	}
	if !account.TradeAllowed {
		session.Close(ctx)
		return nil, "", "", fmt.Errorf("trading disabled for account %s", account.Login)
	}
	info, err := session.TerminalInfo(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, "", "", fmt.Errorf("query terminal info: %w", err)
	}
	return session, resolved, info.FilesDir, nil
}

func (c *Coordinator) credentials(robot *storage.Robot) (terminal.Credentials, error) {
	password, err := c.decryptor.Decrypt(robot.EncryptedPassword)
	if err != nil {
		return terminal.Credentials{}, fmt.Errorf("decrypt credentials: %w", err)
	}
	return terminal.Credentials{
		Login:    robot.AccountLogin,
		Password: password,
		Server:   robot.AccountServer,
	}, nil
}

// failPhase marks the phase FAILED, records the event and wraps the error.
// The phase row may not exist yet when credential decryption failed; in
// that case it is created first so the trail still shows the failure.
func (c *Coordinator) failPhase(robot *storage.Robot, phase *storage.DeploymentPhase, cause error) error {
	phase.Status = storage.PhaseStatusFailed
	phase.Detail = cause.Error()
	var err error
	if phase.ID == 0 {
		err = c.store.SavePhase(phase)
	} else {
		err = c.store.UpdatePhase(phase)
	}
	if err != nil {
		c.log.Errorf("deploy: persist failed phase %s: %v", phase.Phase, err)
	}
	c.store.LogEvent(robot.ID, storage.EventError, "deployment %s failed: %v", phase.Phase, cause)
	c.log.Errorf("deploy: robot %d %s: %v", robot.ID, phase.Phase, cause)
	return &PhaseFailure{Phase: phase.Phase, Err: cause}
}

func (c *Coordinator) completePhase(phase *storage.DeploymentPhase, detail string) {
	phase.Status = storage.PhaseStatusOK
	phase.Detail = detail
	if err := c.store.UpdatePhase(phase); err != nil {
		c.log.Errorf("deploy: update phase %s: %v", phase.Phase, err)
	}
}

// PhasePending builds a fresh phase row in its initial state.
func PhasePending(robotID uint, phase string) *storage.DeploymentPhase {
	return &storage.DeploymentPhase{RobotID: robotID, Phase: phase, Status: storage.PhaseStatusPending}
}
