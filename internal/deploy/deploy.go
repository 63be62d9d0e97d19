// Package deploy pushes the current directory's compose application to the
// provisioned host: transform the compose document, ship a project snapshot,
// point the local compose CLI at the remote engine, bring the stack up, and
// record the result. The execution context swap is scoped — whatever happens
// after the switch, the previous context is restored before returning.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackerrun/hackerrun/internal/archive"
	"github.com/hackerrun/hackerrun/internal/compose"
	"github.com/hackerrun/hackerrun/internal/config"
	"github.com/hackerrun/hackerrun/internal/dockerctx"
	"github.com/hackerrun/hackerrun/internal/errdefs"
	"github.com/hackerrun/hackerrun/internal/provision"
	"github.com/hackerrun/hackerrun/internal/ui"
)

const (
	// SourceComposeFile is read; DerivedComposeFile is what actually runs.
	SourceComposeFile  = "docker-compose.yml"
	DerivedComposeFile = "docker-compose.hackerrun.yml"

	ignoreFileName = ".dockerignore"
	envFileName    = ".env"
	noEnvFile      = "none"

	remoteDeployRoot = "hackerrun/deployments"
)

// Session is the slice of the remote session deploy needs.
type Session interface {
	Run(command string) (string, error)
	Upload(localPath, remotePath string) error
	Close() error
}

// Dialer opens a session to the host.
type Dialer func(ctx context.Context, host string) (Session, error)

// Engine is the local docker CLI surface deploy drives.
type Engine interface {
	CurrentContext(ctx context.Context) (string, error)
	ContextExists(ctx context.Context, name string) (bool, error)
	UseContext(ctx context.Context, name string) error
	ComposeUp(ctx context.Context, composeFile string) error
	ComposeDown(ctx context.Context, composeFile string) error
}

// Archiver packages a directory; archive.Build in production.
type Archiver func(sourceDir, outputPath, ignorePath string) error

// Options carries the collaborators and the project location.
type Options struct {
	Store      *config.Store
	Prompter   ui.Prompter
	Dial       Dialer
	Engine     Engine
	Archive    Archiver
	ProjectDir string

	Now   func() time.Time // defaults to time.Now
	NewID func() string    // defaults to uuid.NewString
}

// Run executes the deploy choreography and returns the deployment record on
// success.
func Run(ctx context.Context, opts Options) (*config.DeploymentRecord, error) {
	if opts.Archive == nil {
		opts.Archive = archive.Build
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	// Validate — everything here fails before any remote contact.
	host := opts.Store.ServerAddress()
	if host == "" {
		return nil, errdefs.Validation("no server configured; run `hackerrun init` first")
	}
	sourcePath := filepath.Join(opts.ProjectDir, SourceComposeFile)
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, errdefs.Validation("no %s found in %s", SourceComposeFile, opts.ProjectDir)
	}
	contextName := dockerctx.ContextName(host)
	exists, err := opts.Engine.ContextExists(ctx, contextName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &errdefs.ContextError{Name: contextName,
			Msg: "not found; run `hackerrun init` to provision the host before deploying"}
	}

	doc, err := compose.Load(sourcePath)
	if err != nil {
		return nil, err
	}

	// SelectService&Port
	service, err := selectService(doc, opts.Prompter)
	if err != nil {
		return nil, err
	}
	port, err := opts.Prompter.Input("Container port to route traffic to", compose.DefaultPort)
	if err != nil {
		return nil, err
	}
	if err := config.ValidatePort(port); err != nil {
		return nil, err
	}

	// SelectEnvFile
	envFile, err := selectEnvFile(opts.ProjectDir, opts.Prompter)
	if err != nil {
		return nil, err
	}

	// TransformDocument — on a clone; the source file is never mutated.
	domain := fmt.Sprintf("%s.%s.sslip.io", service, host)
	derived := doc.Clone()
	if err := derived.InjectRoutingLabels(service, domain, port); err != nil {
		return nil, err
	}
	if err := derived.AttachSharedNetwork(); err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := derived.AttachEnvFile(envFile); err != nil {
			return nil, err
		}
	}
	derivedPath := filepath.Join(opts.ProjectDir, DerivedComposeFile)
	if err := derived.Save(derivedPath); err != nil {
		return nil, err
	}

	email, err := certEmail(opts.Store, opts.Prompter)
	if err != nil {
		return nil, err
	}

	session, err := opts.Dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	// PackageAndUpload — a timestamped snapshot of the project per deploy.
	if err := uploadSnapshot(session, opts); err != nil {
		return nil, err
	}

	// UpdateProxyTLS — non-fatal: an already-configured proxy makes the sed
	// a no-op, and a broken proxy update should not block the deploy.
	if err := updateProxyTLS(session, email); err != nil {
		ui.Warn("failed to update proxy TLS configuration: %v", err)
	}

	// SwitchContext → BringUp → RestoreContext. The closure scopes the swap
	// so restoration runs on success and on every failure path.
	if err := withContext(ctx, opts.Engine, contextName, func() error {
		// A previous stack under the derived filename may or may not exist.
		if err := opts.Engine.ComposeDown(ctx, derivedPath); err != nil {
			ui.Warn("teardown of previous stack skipped: %v", err)
		}
		ui.Step("Bringing up %s", service)
		return opts.Engine.ComposeUp(ctx, derivedPath)
	}); err != nil {
		return nil, err
	}

	// PersistRecord
	rec := config.DeploymentRecord{
		ID:         opts.NewID(),
		Host:       host,
		Service:    service,
		Domain:     domain,
		DeployedAt: opts.Now(),
	}
	if err := config.SaveRecord(opts.ProjectDir, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// withContext swaps the active docker context, runs fn, and restores the
// previous context on every exit path. A failed restore after a successful
// fn is a warning, not an error — the deployment itself already landed.
func withContext(ctx context.Context, engine Engine, name string, fn func() error) error {
	previous, err := engine.CurrentContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine current docker context: %w", err)
	}
	if err := engine.UseContext(ctx, name); err != nil {
		return err
	}

	fnErr := fn()

	if err := engine.UseContext(ctx, previous); err != nil {
		ui.Warn("failed to restore docker context %q: %v", previous, err)
		ui.Warn("switch back manually with: docker context use %s", previous)
	}
	return fnErr
}

func selectService(doc *compose.Document, prompter ui.Prompter) (string, error) {
	services, err := doc.Services()
	if err != nil {
		return "", err
	}
	if len(services) == 1 {
		ui.OK("exposing service %s", services[0])
		return services[0], nil
	}
	return prompter.Select("Which service should receive public traffic?", services)
}

// selectEnvFile discovers .env-style files in the project directory. Zero
// hits offers to create an empty placeholder; multiple hits force an
// explicit choice that includes declining altogether.
func selectEnvFile(projectDir string, prompter ui.Prompter) (string, error) {
	matches, err := filepath.Glob(filepath.Join(projectDir, ".env*"))
	if err != nil {
		return "", err
	}
	var names []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			names = append(names, filepath.Base(m))
		}
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		create, err := prompter.Confirm("No env file found. Create an empty "+envFileName+"?", false)
		if err != nil {
			return "", err
		}
		if !create {
			return "", nil
		}
		if err := os.WriteFile(filepath.Join(projectDir, envFileName), nil, 0o600); err != nil {
			return "", fmt.Errorf("failed to create env file: %w", err)
		}
		return envFileName, nil
	case 1:
		return names[0], nil
	default:
		choice, err := prompter.Select("Multiple env files found. Which one should the services load?",
			append(names, noEnvFile))
		if err != nil {
			return "", err
		}
		if choice == noEnvFile {
			return "", nil
		}
		return choice, nil
	}
}

func certEmail(store *config.Store, prompter ui.Prompter) (string, error) {
	if email := store.CertEmail(); email != "" {
		return email, nil
	}
	email, err := prompter.Input("Email for TLS certificate notifications", "")
	if err != nil {
		return "", err
	}
	email = strings.TrimSpace(email)
	if err := config.ValidateEmail(email); err != nil {
		return "", err
	}
	store.SetCertEmail(email)
	if err := store.Save(); err != nil {
		return "", err
	}
	return email, nil
}

func uploadSnapshot(session Session, opts Options) error {
	bundlePath := filepath.Join(opts.ProjectDir, ".hackerrun-bundle.tar.gz")
	defer os.Remove(bundlePath)

	ignorePath := filepath.Join(opts.ProjectDir, ignoreFileName)
	if err := opts.Archive(opts.ProjectDir, bundlePath, ignorePath); err != nil {
		return err
	}

	dir := fmt.Sprintf("%s/%s-%s", remoteDeployRoot,
		opts.Now().UTC().Format("20060102-150405"), opts.NewID()[:8])
	remoteBundle := dir + "/bundle.tar.gz"

	ui.Step("Uploading project snapshot to %s", dir)
	if err := session.Upload(bundlePath, remoteBundle); err != nil {
		return err
	}
	if _, err := session.Run(fmt.Sprintf("tar -xzf %s -C %s && rm %s", remoteBundle, dir, remoteBundle)); err != nil {
		return fmt.Errorf("failed to unpack snapshot: %w", err)
	}
	return nil
}

// updateProxyTLS replaces the placeholder ACME contact written at provision
// time and recreates the proxy so Traefik picks the change up.
func updateProxyTLS(session Session, email string) error {
	cmd := fmt.Sprintf("if grep -q %s %s; then sed -i 's/%s/%s/' %s && cd %s && docker compose up -d --force-recreate; fi",
		provision.PlaceholderEmail, provision.ProxyConfigPath,
		provision.PlaceholderEmail, email, provision.ProxyConfigPath,
		provision.ProxyDir)
	_, err := session.Run(cmd)
	return err
}
