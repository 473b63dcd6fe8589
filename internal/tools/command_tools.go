package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

func runCommandDefinition() Definition {
	return Definition{
		Name:        "run_terminal_command",
		Description: "Run a terminal command and return the result.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Command to execute in the terminal",
				},
				"cwd": map[string]any{
					"type":        "string",
					"description": "Current working directory for the command (optional)",
				},
			},
			"required": []string{"command"},
		},
	}
}

func installPackageDefinition() Definition {
	return Definition{
		Name:        "install_python_package",
		Description: "Install a Python package using pip.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"package_name": map[string]any{
					"type":        "string",
					"description": "Name of the package to install",
				},
				"upgrade": map[string]any{
					"type":        "boolean",
					"description": "Whether to upgrade the package if already installed (optional)",
				},
			},
			"required": []string{"package_name"},
		},
	}
}

func (r *Registry) handleRunCommand(ctx context.Context, call Call) (map[string]any, error) {
	command := strings.TrimSpace(stringInput(call.Input, "command"))
	if command == "" {
		return nil, errors.New("empty command provided")
	}
	cwd := strings.TrimSpace(stringInput(call.Input, "cwd"))
	if cwd == "" {
		cwd = call.WorkDir
	} else if p, err := resolvePath(call.WorkDir, cwd); err == nil {
		cwd = p
	}
	return r.runShell(ctx, command, cwd)
}

func (r *Registry) handleInstallPackage(ctx context.Context, call Call) (map[string]any, error) {
	pkg := strings.TrimSpace(stringInput(call.Input, "package_name"))
	if pkg == "" {
		return nil, errors.New("empty package name provided")
	}
	if strings.ContainsAny(pkg, " \t\n;|&$`'\"") {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}
	args := []string{"pip", "install", pkg}
	if upgrade, _ := call.Input["upgrade"].(bool); upgrade {
		args = append(args, "--upgrade")
	}
	return r.runShell(ctx, strings.Join(args, " "), call.WorkDir)
}

// runShell executes a command via the shell, bounded by the registry's
// command timeout, capturing stdout, stderr and the exit code.
func (r *Registry) runShell(ctx context.Context, command string, cwd string) (map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	r.log.Info("running command", "command", command, "cwd", cwd)

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	if strings.TrimSpace(cwd) != "" {
		cmd.Dir = cwd
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s: %s", r.commandTimeout, command)
	}

	returnCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returnCode = exitErr.ExitCode()
		} else {
			return nil, runErr
		}
	}

	status := "success"
	if returnCode != 0 {
		status = "error"
	}
	return map[string]any{
		"status":     status,
		"stdout":     stdout.String(),
		"stderr":     stderr.String(),
		"returncode": returnCode,
		"command":    command,
	}, nil
}
