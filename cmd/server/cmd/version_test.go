package cmd

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func stampBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	prevVersion, prevCommit, prevDate := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = version, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = prevVersion, prevCommit, prevDate })
}

func runVersion(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"version"}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	stampBuild(t, "1.4.0", "abc123", "2026-06-01T12:00:00Z")

	out, err := runVersion(t)
	require.NoError(t, err)
	require.Contains(t, out, "Orbit 1.4.0\n")
	require.Contains(t, out, "commit:   abc123")
	require.Contains(t, out, "built:    2026-06-01T12:00:00Z")
	require.Contains(t, out, "go:       "+runtime.Version())
}

func TestVersionCommand_Short(t *testing.T) {
	stampBuild(t, "1.4.0", "abc123", "2026-06-01T12:00:00Z")

	out, err := runVersion(t, "--short")
	require.NoError(t, err)
	require.Equal(t, "1.4.0\n", out)
}

func TestVersionCommand_JSON(t *testing.T) {
	stampBuild(t, "dev", "unknown", "unknown")

	out, err := runVersion(t, "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "dev", got["version"])
	require.Equal(t, "unknown", got["git_commit"])
	require.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got["platform"])
}

func TestVersionCommand_FlagsExclusive(t *testing.T) {
	_, err := runVersion(t, "--json", "--short")
	require.Error(t, err)
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	_, err := runVersion(t, "extra")
	require.Error(t, err)
}

// version runs without a config file, database, or environment.
func TestVersionCommand_NeedsNoConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://unreachable.invalid/orbit")
	t.Setenv("ENVIRONMENT", "production")

	out, err := runVersion(t, "--short")
	require.NoError(t, err)
	require.NotEmpty(t, out)
}
