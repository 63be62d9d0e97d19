// Package remote wraps one authenticated SSH connection to the target host.
// Every command is a blocking round trip on a fresh channel; there is no
// pipelining and no cancellation once a command has been dispatched.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/hackerrun/hackerrun/internal/errdefs"
)

const (
	defaultUser    = "root"
	defaultPort    = "22"
	connectTimeout = 15 * time.Second
)

// Config describes how to reach and authenticate against the host.
type Config struct {
	Host string
	User string // defaults to root
	Port string // defaults to 22

	// PassphrasePrompt is called once per encrypted private key. Nil means
	// encrypted keys are skipped.
	PassphrasePrompt func(keyPath string) (string, error)
}

// Session is one authenticated connection. Callers must Close it on every
// exit path.
type Session struct {
	client *ssh.Client
	host   string
}

// Connect dials the host and authenticates. Keys are tried in a fixed
// order — ~/.ssh/id_rsa, then ~/.ssh/id_ed25519, then the SSH agent when
// SSH_AUTH_SOCK is set. No usable credential or a rejected handshake yields
// a ConnectionError.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	user := cfg.User
	if user == "" {
		user = defaultUser
	}
	port := cfg.Port
	if port == "" {
		port = defaultPort
	}

	auth := discoverAuth(cfg)
	if len(auth) == 0 {
		return nil, &errdefs.ConnectionError{Host: cfg.Host, Err: errors.New("no SSH key found in ~/.ssh and no agent available")}
	}

	clientCfg := &ssh.ClientConfig{
		User: user,
		Auth: auth,
		// The host was just provisioned by us; there is no prior key to pin.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, port)
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &errdefs.ConnectionError{Host: cfg.Host, Err: err}
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, &errdefs.ConnectionError{Host: cfg.Host, Err: err}
	}
	return &Session{client: ssh.NewClient(sshConn, chans, reqs), host: cfg.Host}, nil
}

// discoverAuth assembles auth methods in the documented order. Unreadable or
// unparsable keys are skipped rather than fatal; the handshake decides.
func discoverAuth(cfg Config) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	home, err := os.UserHomeDir()
	if err == nil {
		for _, name := range []string{"id_rsa", "id_ed25519"} {
			keyPath := filepath.Join(home, ".ssh", name)
			signer, err := loadKey(keyPath, cfg.PassphrasePrompt)
			if err != nil {
				continue
			}
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	return methods
}

func loadKey(path string, prompt func(string) (string, error)) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && prompt != nil {
		passphrase, perr := prompt(path)
		if perr != nil {
			return nil, perr
		}
		return ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	return nil, err
}

// Run executes one command on a fresh channel and returns its stdout.
// A nonzero exit yields a CommandError carrying the exit status and the
// captured stderr.
func (s *Session) Run(command string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open SSH channel: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if err := sess.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return "", &errdefs.CommandError{
				Command:  command,
				ExitCode: exitErr.ExitStatus(),
				Stderr:   stderr.String(),
			}
		}
		return "", fmt.Errorf("remote command %q failed: %w", command, err)
	}
	return stdout.String(), nil
}

// Upload copies a local file to remotePath verbatim, creating parent
// directories as needed.
func (s *Session) Upload(localPath, remotePath string) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return &errdefs.TransferError{Path: localPath, Err: err}
	}
	defer client.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return &errdefs.TransferError{Path: localPath, Err: err}
	}
	defer src.Close()

	if dir := filepath.ToSlash(filepath.Dir(remotePath)); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return &errdefs.TransferError{Path: localPath, Err: err}
		}
	}
	dst, err := client.Create(remotePath)
	if err != nil {
		return &errdefs.TransferError{Path: localPath, Err: err}
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(src); err != nil {
		return &errdefs.TransferError{Path: localPath, Err: err}
	}
	return nil
}

// WriteFile writes content to remotePath, for small generated files that
// never exist locally (proxy configuration and the like).
func (s *Session) WriteFile(remotePath string, content []byte, mode os.FileMode) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return &errdefs.TransferError{Path: remotePath, Err: err}
	}
	defer client.Close()

	if dir := filepath.ToSlash(filepath.Dir(remotePath)); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return &errdefs.TransferError{Path: remotePath, Err: err}
		}
	}
	dst, err := client.Create(remotePath)
	if err != nil {
		return &errdefs.TransferError{Path: remotePath, Err: err}
	}
	defer dst.Close()

	if _, err := dst.Write(content); err != nil {
		return &errdefs.TransferError{Path: remotePath, Err: err}
	}
	if err := dst.Chmod(mode); err != nil {
		return &errdefs.TransferError{Path: remotePath, Err: err}
	}
	return nil
}

// Host returns the address this session is connected to.
func (s *Session) Host() string { return s.host }

// Close releases the connection. Safe to call more than once.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
