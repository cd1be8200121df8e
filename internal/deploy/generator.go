package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileGenerator renders the executor input file the terminal loads on
// start. The format is flat key=value lines; the executor treats it as
// opaque configuration. The file is written atomically so the executor
// never observes a half-written artifact.
type FileGenerator struct{}

func (g *FileGenerator) Generate(_ context.Context, spec InjectionSpec) (Artifact, error) {
	if spec.FilesDir == "" {
		return Artifact{}, fmt.Errorf("generate artifact: terminal files directory unknown")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "robot_id=%d\n", spec.RobotID)
	fmt.Fprintf(&b, "symbol=%s\n", spec.Symbol)
	fmt.Fprintf(&b, "login=%s\n", spec.Credentials.Login)
	fmt.Fprintf(&b, "password=%s\n", spec.Credentials.Password)
	fmt.Fprintf(&b, "server=%s\n", spec.Credentials.Server)
	fmt.Fprintf(&b, "rules=%s\n", spec.RulesJSON)
	fmt.Fprintf(&b, "lot=%.2f\n", spec.Lot)
	fmt.Fprintf(&b, "stop_loss=%d\n", spec.StopLoss)
	fmt.Fprintf(&b, "take_profit=%d\n", spec.TakeProfit)

	path := filepath.Join(spec.FilesDir, fmt.Sprintf("robot_%d.set", spec.RobotID))
	tmp, err := os.CreateTemp(spec.FilesDir, "robot_*.tmp")
	if err != nil {
		return Artifact{}, fmt.Errorf("generate artifact: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Artifact{}, fmt.Errorf("generate artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Artifact{}, fmt.Errorf("generate artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return Artifact{}, fmt.Errorf("generate artifact: %w", err)
	}
	return Artifact{Path: path}, nil
}

// Remove deletes a previously injected artifact, used when a robot stops.
func (g *FileGenerator) Remove(filesDir string, robotID uint) error {
	path := filepath.Join(filesDir, fmt.Sprintf("robot_%d.set", robotID))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
