package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/phaseline/internal/log"
)

// CommandGateway invokes collaborators as external executables: the prompt
// context goes to stdin as JSON, the report comes back on stdout as JSON.
// Useful for wiring in CLI-based coding agents.
type CommandGateway struct {
	commands map[Role][]string
	workdir  string
	logger   *log.Logger
}

// NewCommandGateway creates a gateway that shells out per role.
// commands maps each role to its argv; a role without a command cannot be
// invoked.
func NewCommandGateway(commands map[Role][]string, workdir string) *CommandGateway {
	return &CommandGateway{
		commands: commands,
		workdir:  workdir,
		logger:   log.DefaultLogger().With("component", "agent", "gateway", "command"),
	}
}

type commandRequest struct {
	Role    Role          `json:"role"`
	Context PromptContext `json:"context"`
}

// Invoke runs the role's configured command and parses its stdout as a Report
func (g *CommandGateway) Invoke(ctx context.Context, role Role, pc PromptContext) (*Report, error) {
	argv, ok := g.commands[role]
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("no command configured for agent role %q", role)
	}

	input, err := json.Marshal(commandRequest{Role: role, Context: pc})
	if err != nil {
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}

	invocationID := uuid.NewString()
	g.logger.Debug("invoking agent command", "role", string(role),
		"invocation", invocationID, "command", argv[0])

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from operator config
	cmd.Dir = g.workdir
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.WithError(err).Warn("agent command failed",
			"role", string(role), "invocation", invocationID, "stderr", stderr.String())
		return nil, &Failure{Role: role, Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}

	report, err := ParseReport(role, stdout.String())
	if err != nil {
		return nil, &Failure{Role: role, Err: err}
	}
	return report, nil
}
