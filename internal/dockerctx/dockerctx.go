// Package dockerctx drives the local docker CLI: execution context
// bookkeeping plus compose up/down against whichever context is selected.
package dockerctx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hackerrun/hackerrun/internal/errdefs"
)

// contextPrefix namespaces the contexts this tool creates so they are easy
// to spot in `docker context ls`.
const contextPrefix = "hackerrun-"

// runner executes one docker invocation and returns stdout and stderr.
type runner func(ctx context.Context, args ...string) (string, string, error)

// Client wraps the docker CLI.
type Client struct {
	run runner
}

// New creates a Client. It verifies that docker is available on the system.
func New(ctx context.Context) (*Client, error) {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		return nil, fmt.Errorf("docker not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, dockerPath, "--version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("docker command failed: %w", err)
	}

	return &Client{run: execRunner(dockerPath)}, nil
}

func execRunner(dockerPath string) runner {
	return func(ctx context.Context, args ...string) (string, string, error) {
		cmd := exec.CommandContext(ctx, dockerPath, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		return stdout.String(), stderr.String(), err
	}
}

// ContextName derives the context name for a host address. The mapping is
// deterministic so re-provisioning the same host reuses the same name.
func ContextName(host string) string {
	var b strings.Builder
	b.WriteString(contextPrefix)
	for _, r := range host {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

// CurrentContext returns the name of the active docker context.
func (c *Client) CurrentContext(ctx context.Context) (string, error) {
	stdout, stderr, err := c.run(ctx, "context", "show")
	if err != nil {
		return "", fmt.Errorf("failed to read current docker context: %v: %s", err, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// ContextExists reports whether a context with this name is registered.
func (c *Client) ContextExists(ctx context.Context, name string) (bool, error) {
	_, _, err := c.run(ctx, "context", "inspect", name)
	if err != nil {
		// docker context inspect exits nonzero for unknown names; that is
		// the signal, not a fault.
		return false, nil
	}
	return true, nil
}

// CreateContext registers a context pointing at the remote engine over SSH.
// Any stale context of the same name is removed first so re-provisioning a
// host never fails on leftovers.
func (c *Client) CreateContext(ctx context.Context, name, user, host string) error {
	_, _, _ = c.run(ctx, "context", "rm", "-f", name)

	endpoint := fmt.Sprintf("host=ssh://%s@%s", user, host)
	if _, stderr, err := c.run(ctx, "context", "create", name, "--docker", endpoint); err != nil {
		return &errdefs.ContextError{Name: name, Msg: strings.TrimSpace(stderr)}
	}
	return nil
}

// UseContext switches the active context.
func (c *Client) UseContext(ctx context.Context, name string) error {
	if _, stderr, err := c.run(ctx, "context", "use", name); err != nil {
		return &errdefs.ContextError{Name: name, Msg: strings.TrimSpace(stderr)}
	}
	return nil
}

// ComposeUp brings up the stack described by the compose file, building
// images as needed.
func (c *Client) ComposeUp(ctx context.Context, composeFile string) error {
	if _, stderr, err := c.run(ctx, "compose", "-f", composeFile, "up", "-d"); err != nil {
		return fmt.Errorf("docker compose up failed: %v: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}

// ComposeDown tears down the stack described by the compose file.
func (c *Client) ComposeDown(ctx context.Context, composeFile string) error {
	if _, stderr, err := c.run(ctx, "compose", "-f", composeFile, "down"); err != nil {
		return fmt.Errorf("docker compose down failed: %v: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}
