// Package shell runs a command described by the task's persistent data.
// It is registered system-only: arbitrary command execution is not for
// regular users.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"taskwell/internal/registry"
)

type Handler struct{}

type Cmd struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

func (Handler) Execute(ctx context.Context, p registry.Params) error {
	var c Cmd
	if err := json.Unmarshal([]byte(p.Data), &c); err != nil {
		return err
	}
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("shell error: %v; out=%s", err, string(out))
	}
	return nil
}
