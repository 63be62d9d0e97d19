// Package provision performs first-time host setup: connectivity check,
// Docker installation, reverse proxy layout, and registration of the local
// execution context. Steps run strictly in sequence; each remote round trip
// completes before the next begins.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hackerrun/hackerrun/internal/compose"
	"github.com/hackerrun/hackerrun/internal/config"
	"github.com/hackerrun/hackerrun/internal/dockerctx"
	"github.com/hackerrun/hackerrun/internal/errdefs"
	"github.com/hackerrun/hackerrun/internal/ui"
)

// Session is the slice of the remote session the choreography needs.
type Session interface {
	Run(command string) (string, error)
	WriteFile(remotePath string, content []byte, mode os.FileMode) error
	Close() error
}

// Dialer opens a session to the host.
type Dialer func(ctx context.Context, host string) (Session, error)

// ContextRegistrar creates the local docker context for the host.
type ContextRegistrar interface {
	CreateContext(ctx context.Context, name, user, host string) error
}

// Options carries the collaborators. All fields are required.
type Options struct {
	Store    *config.Store
	Prompter ui.Prompter
	Dial     Dialer
	Contexts ContextRegistrar
	User     string // SSH user, defaults to root
}

// Run executes the provision choreography.
func Run(ctx context.Context, opts Options) error {
	user := opts.User
	if user == "" {
		user = "root"
	}

	// CheckExistingConfig
	if existing := opts.Store.ServerAddress(); existing != "" {
		ok, err := opts.Prompter.Confirm(
			fmt.Sprintf("A host is already configured (%s). Provision a different one?", existing), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Keeping the existing configuration.")
			return nil
		}
	}

	// CollectHostAddress
	host, err := opts.Prompter.Input("Server IP address", "")
	if err != nil {
		return err
	}
	host = strings.TrimSpace(host)
	if err := config.ValidateIPv4(host); err != nil {
		return err
	}

	// TestConnection
	ui.Step("Connecting to %s", host)
	session, err := opts.Dial(ctx, host)
	if err != nil {
		ui.Fail("connection failed")
		return fmt.Errorf("%w\nCheck that the server is reachable and that your SSH key is in the server's authorized_keys", err)
	}
	defer session.Close()
	if _, err := session.Run("echo connected"); err != nil {
		ui.Fail("connection test failed")
		return fmt.Errorf("%w\nCheck that the server is reachable and that your SSH key is in the server's authorized_keys", err)
	}
	ui.OK("connected")

	// DetectEngine / InstallEngineIfAbsent
	ui.Step("Checking for Docker")
	if _, err := session.Run("docker version"); err != nil {
		// Nonzero exit means Docker is not installed, not that the check
		// itself broke.
		ui.Warn("Docker not found, installing (this can take a few minutes)")
		if err := installEngine(session); err != nil {
			return err
		}
		ui.OK("Docker installed")
	} else {
		ui.OK("Docker already installed")
	}

	// ConfigureProxy
	ui.Step("Configuring reverse proxy")
	if err := configureProxy(session); err != nil {
		return err
	}
	ui.OK("proxy running")

	// CreateContext — non-fatal: deploys can still run after a manual
	// `docker context create`.
	name := dockerctx.ContextName(host)
	ui.Step("Registering docker context %s", name)
	if err := opts.Contexts.CreateContext(ctx, name, user, host); err != nil {
		ui.Warn("failed to create docker context: %v", err)
		ui.Warn("create it manually with: docker context create %s --docker host=ssh://%s@%s", name, user, host)
	} else {
		ui.OK("context registered")
	}

	// PersistConfig
	opts.Store.SetServerAddress(host)
	if err := opts.Store.Save(); err != nil {
		return err
	}
	ui.OK("configuration saved to %s", opts.Store.Path())
	return nil
}

func installEngine(session Session) error {
	const scriptPath = "/tmp/hackerrun-install-docker.sh"
	if err := session.WriteFile(scriptPath, installScript, 0o755); err != nil {
		return err
	}
	if _, err := session.Run("sh " + scriptPath); err != nil {
		return fmt.Errorf("docker installation failed: %w", err)
	}
	return nil
}

func configureProxy(session Session) error {
	if err := session.WriteFile(ProxyConfigPath, []byte(proxyConfig), 0o644); err != nil {
		return err
	}
	if err := session.WriteFile(ProxyComposePath, []byte(proxyCompose), 0o644); err != nil {
		return err
	}
	// The ACME store holds private keys; Traefik refuses it unless the
	// permissions are restricted.
	if _, err := session.Run(fmt.Sprintf("touch %s && chmod 600 %s", ProxyStorePath, ProxyStorePath)); err != nil {
		return fmt.Errorf("failed to prepare certificate storage: %w", err)
	}

	// The shared network may survive a previous installation.
	if _, err := session.Run("docker network create " + compose.SharedNetwork); err != nil {
		var cmdErr *errdefs.CommandError
		if !errors.As(err, &cmdErr) || !strings.Contains(cmdErr.Stderr, "already exists") {
			return fmt.Errorf("failed to create shared network: %w", err)
		}
	}

	if _, err := session.Run(fmt.Sprintf("cd %s && docker compose up -d", ProxyDir)); err != nil {
		return fmt.Errorf("failed to start reverse proxy: %w", err)
	}
	return nil
}
