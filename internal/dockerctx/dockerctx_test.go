package dockerctx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackerrun/hackerrun/internal/errdefs"
)

func TestContextName(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"1.2.3.4", "hackerrun-1-2-3-4"},
		{"203.0.113.7", "hackerrun-203-0-113-7"},
		{"abc123", "hackerrun-abc123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContextName(tt.host))
	}
	// Deterministic: same input, same name.
	assert.Equal(t, ContextName("1.2.3.4"), ContextName("1.2.3.4"))
}

type call struct {
	args []string
}

type fakeRunner struct {
	calls []call
	// respond maps the first matching argument prefix to an error.
	fail map[string]error
}

func (f *fakeRunner) run(_ context.Context, args ...string) (string, string, error) {
	f.calls = append(f.calls, call{args: args})
	key := strings.Join(args, " ")
	for prefix, err := range f.fail {
		if strings.HasPrefix(key, prefix) {
			return "", "simulated failure", err
		}
	}
	if key == "context show" {
		return "default\n", "", nil
	}
	return "", "", nil
}

func TestCreateContextRemovesStaleContextFirst(t *testing.T) {
	fr := &fakeRunner{}
	c := &Client{run: fr.run}

	require.NoError(t, c.CreateContext(context.Background(), "hackerrun-1-2-3-4", "root", "1.2.3.4"))

	require.Len(t, fr.calls, 2)
	assert.Equal(t, []string{"context", "rm", "-f", "hackerrun-1-2-3-4"}, fr.calls[0].args)
	assert.Equal(t, []string{"context", "create", "hackerrun-1-2-3-4",
		"--docker", "host=ssh://root@1.2.3.4"}, fr.calls[1].args)
}

func TestCreateContextIgnoresRemoveFailure(t *testing.T) {
	fr := &fakeRunner{fail: map[string]error{"context rm": errors.New("no such context")}}
	c := &Client{run: fr.run}

	require.NoError(t, c.CreateContext(context.Background(), "hackerrun-x", "root", "1.2.3.4"))
	assert.Len(t, fr.calls, 2)
}

func TestCreateContextReportsCreateFailure(t *testing.T) {
	fr := &fakeRunner{fail: map[string]error{"context create": errors.New("boom")}}
	c := &Client{run: fr.run}

	err := c.CreateContext(context.Background(), "hackerrun-x", "root", "1.2.3.4")
	var cerr *errdefs.ContextError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "hackerrun-x", cerr.Name)
}

func TestUseContextUnknownName(t *testing.T) {
	fr := &fakeRunner{fail: map[string]error{"context use": errors.New("not found")}}
	c := &Client{run: fr.run}

	err := c.UseContext(context.Background(), "ghost")
	var cerr *errdefs.ContextError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "ghost", cerr.Name)
}

func TestContextExists(t *testing.T) {
	fr := &fakeRunner{}
	c := &Client{run: fr.run}
	ok, err := c.ContextExists(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, ok)

	fr = &fakeRunner{fail: map[string]error{"context inspect": errors.New("exit 1")}}
	c = &Client{run: fr.run}
	ok, err = c.ContextExists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentContext(t *testing.T) {
	fr := &fakeRunner{}
	c := &Client{run: fr.run}
	name, err := c.CurrentContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", name)
}
