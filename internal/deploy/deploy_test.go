package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackerrun/hackerrun/internal/compose"
	"github.com/hackerrun/hackerrun/internal/config"
	"github.com/hackerrun/hackerrun/internal/errdefs"
)

type fakePrompter struct {
	port          string
	email         string
	selectAnswer  string
	selectOptions []string
	confirmAnswer bool
}

func (f *fakePrompter) Input(label, defaultValue string) (string, error) {
	switch {
	case strings.Contains(label, "port"):
		if f.port != "" {
			return f.port, nil
		}
		return defaultValue, nil
	case strings.Contains(label, "Email"):
		return f.email, nil
	}
	return defaultValue, nil
}

func (f *fakePrompter) Select(label string, options []string) (string, error) {
	f.selectOptions = options
	if f.selectAnswer != "" {
		return f.selectAnswer, nil
	}
	return options[0], nil
}

func (f *fakePrompter) Confirm(label string, defaultYes bool) (bool, error) {
	return f.confirmAnswer, nil
}

func (f *fakePrompter) Password(label string) (string, error) { return "", nil }

type fakeEngine struct {
	current  string
	contexts map[string]bool
	switches []string
	failUse  map[string]error
	upErr    error
	downErr  error
	upFiles  []string
}

func (f *fakeEngine) CurrentContext(ctx context.Context) (string, error) { return f.current, nil }

func (f *fakeEngine) ContextExists(ctx context.Context, name string) (bool, error) {
	return f.contexts[name], nil
}

func (f *fakeEngine) UseContext(ctx context.Context, name string) error {
	if err := f.failUse[name]; err != nil {
		return err
	}
	f.switches = append(f.switches, name)
	return nil
}

func (f *fakeEngine) ComposeUp(ctx context.Context, file string) error {
	f.upFiles = append(f.upFiles, file)
	return f.upErr
}

func (f *fakeEngine) ComposeDown(ctx context.Context, file string) error { return f.downErr }

type fakeSession struct {
	runs    []string
	uploads []string
	failRun string // commands containing this substring fail
	closed  bool
}

func (f *fakeSession) Run(command string) (string, error) {
	f.runs = append(f.runs, command)
	if f.failRun != "" && strings.Contains(command, f.failRun) {
		return "", &errdefs.CommandError{Command: command, ExitCode: 1, Stderr: "simulated"}
	}
	return "", nil
}

func (f *fakeSession) Upload(localPath, remotePath string) error {
	f.uploads = append(f.uploads, remotePath)
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type env struct {
	dir      string
	store    *config.Store
	engine   *fakeEngine
	session  *fakeSession
	prompter *fakePrompter
	dials    int
}

func newEnv(t *testing.T, host string) *env {
	t.Helper()
	e := &env{
		dir:      t.TempDir(),
		engine:   &fakeEngine{current: "default", contexts: map[string]bool{}},
		session:  &fakeSession{},
		prompter: &fakePrompter{},
	}
	store, err := config.OpenAt(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	if host != "" {
		store.SetServerAddress(host)
		store.SetCertEmail("ops@example.com")
		e.engine.contexts["hackerrun-"+strings.ReplaceAll(host, ".", "-")] = true
	}
	e.store = store
	return e
}

func (e *env) options() Options {
	return Options{
		Store:      e.store,
		Prompter:   e.prompter,
		Engine:     e.engine,
		ProjectDir: e.dir,
		Dial: func(ctx context.Context, host string) (Session, error) {
			e.dials++
			return e.session, nil
		},
		Now:   func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string { return "0123456789abcdef" },
	}
}

func writeCompose(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SourceComposeFile),
		[]byte("services:\n  web:\n    image: x\n"), 0o644))
}

func TestDeployWithoutConfiguredHost(t *testing.T) {
	e := newEnv(t, "")
	writeCompose(t, e.dir)

	_, err := Run(context.Background(), e.options())

	var verr *errdefs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, e.dials, "must fail before any remote contact")
	assert.Empty(t, e.session.runs)
}

func TestDeployWithoutComposeFile(t *testing.T) {
	e := newEnv(t, "1.2.3.4")

	_, err := Run(context.Background(), e.options())

	var verr *errdefs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, e.dials)
}

func TestDeployWithoutContext(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.engine.contexts = map[string]bool{}

	_, err := Run(context.Background(), e.options())

	var cerr *errdefs.ContextError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "hackerrun-1-2-3-4", cerr.Name)
	assert.Zero(t, e.dials)
}

func TestDeploySuccess(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".env"), []byte("A=1"), 0o600))

	rec, err := Run(context.Background(), e.options())
	require.NoError(t, err)

	assert.Equal(t, "web", rec.Service)
	assert.Equal(t, "web.1.2.3.4.sslip.io", rec.Domain)
	assert.Equal(t, "0123456789abcdef", rec.ID)

	// The derived compose file carries the routing labels and network.
	derived, err := compose.Load(filepath.Join(e.dir, DerivedComposeFile))
	require.NoError(t, err)
	labels, err := derived.ServiceLabels("web")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"traefik.enable=true",
		"traefik.http.routers.web.rule=Host(`web.1.2.3.4.sslip.io`)",
		"traefik.http.routers.web.entrypoints=websecure",
		"traefik.http.routers.web.tls.certresolver=letsencrypt",
		"traefik.http.services.web.loadbalancer.server.port=80",
	}, labels)

	// The source file is untouched.
	source, err := compose.Load(filepath.Join(e.dir, SourceComposeFile))
	require.NoError(t, err)
	sourceLabels, err := source.ServiceLabels("web")
	require.NoError(t, err)
	assert.Empty(t, sourceLabels)

	// Context swapped and restored, in that order.
	assert.Equal(t, []string{"hackerrun-1-2-3-4", "default"}, e.engine.switches)
	require.Len(t, e.engine.upFiles, 1)
	assert.Equal(t, filepath.Join(e.dir, DerivedComposeFile), e.engine.upFiles[0])

	// Snapshot uploaded into a timestamped deployment directory.
	require.Len(t, e.session.uploads, 1)
	assert.True(t, strings.HasPrefix(e.session.uploads[0], "hackerrun/deployments/20250601-120000-01234567/"),
		"got %s", e.session.uploads[0])
	assert.True(t, e.session.closed)

	// Record persisted to the project directory.
	saved, err := config.LoadRecord(e.dir)
	require.NoError(t, err)
	assert.Equal(t, rec.Domain, saved.Domain)
}

func TestDeployBringUpFailureRestoresContext(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.engine.upErr = errors.New("compose up exploded")

	_, err := Run(context.Background(), e.options())
	require.Error(t, err)

	// Switched in, then restored despite the failure.
	assert.Equal(t, []string{"hackerrun-1-2-3-4", "default"}, e.engine.switches)

	// No record for a failed deploy.
	_, recErr := config.LoadRecord(e.dir)
	assert.Error(t, recErr)
}

func TestDeployRestoreFailureAfterSuccessIsNotFatal(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.engine.failUse = map[string]error{"default": errors.New("context gone")}

	rec, err := Run(context.Background(), e.options())
	require.NoError(t, err, "the deployment already succeeded; a failed restore is a warning")
	assert.NotNil(t, rec)
}

func TestDeployProxyTLSUpdateFailureIsNotFatal(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.session.failRun = "grep"

	rec, err := Run(context.Background(), e.options())
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestDeployTeardownFailureIsSwallowed(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.engine.downErr = errors.New("nothing to tear down")

	_, err := Run(context.Background(), e.options())
	require.NoError(t, err)
}

func TestDeployInvalidPort(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.prompter.port = "not-a-port"

	_, err := Run(context.Background(), e.options())
	var verr *errdefs.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDeployNoEnvFileDeclined(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.prompter.confirmAnswer = false

	_, err := Run(context.Background(), e.options())
	require.NoError(t, err)

	// Declining means no placeholder is created and no env_file injected.
	_, statErr := os.Stat(filepath.Join(e.dir, ".env"))
	assert.True(t, os.IsNotExist(statErr))

	data, err := os.ReadFile(filepath.Join(e.dir, DerivedComposeFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "env_file")
}

func TestDeployNoEnvFileAccepted(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	e.prompter.confirmAnswer = true

	_, err := Run(context.Background(), e.options())
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(e.dir, ".env"))
	assert.NoError(t, statErr, "accepting the offer creates an empty placeholder")
}

func TestDeployMultipleEnvFilesOffersNone(t *testing.T) {
	e := newEnv(t, "1.2.3.4")
	writeCompose(t, e.dir)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".env"), []byte("A=1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".env.production"), []byte("A=2"), 0o600))
	e.prompter.selectAnswer = "none"

	_, err := Run(context.Background(), e.options())
	require.NoError(t, err)

	assert.Equal(t, []string{".env", ".env.production", "none"}, e.prompter.selectOptions)

	data, err := os.ReadFile(filepath.Join(e.dir, DerivedComposeFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "env_file")
}
