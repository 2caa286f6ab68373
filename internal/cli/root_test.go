package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dukasync.yaml")
	content := `
store_id: ST01
store_path: ` + filepath.Join(dir, "outbox.db") + `
remote:
  kind: http
  base_url: https://api.dukahub.example
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestStatusCommand_EmptyOutbox(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "status"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Unsynced products:       0")
	assert.Contains(t, out.String(), "Pending tax submissions: 0")
}

func TestStatusCommand_JSONFormat(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--format", "json", "status"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"status":"ok"`)
	assert.Contains(t, out.String(), `"unsynced_products":0`)
}

func TestStatusCommand_MissingConfig(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", "/nonexistent/dukasync.yaml", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEtimsExportCommand_NothingPending(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "etims", "export", "--dir", t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "nothing exported")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))
	wrapped := WrapExitError(ExitFailure, "outer", errors.New("inner"))
	assert.Contains(t, wrapped.Error(), "outer: inner")
}
