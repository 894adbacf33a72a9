package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCheckCommand(t *testing.T) {
	cfg := writeTemp(t, "config.yaml", "storage:\n  driver: memory\n")
	out, err := run(t, "check", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	bad := writeTemp(t, "config.yaml", "scheduler:\n  timezone: Nowhere/Void\n")
	_, err = run(t, "check", "--config", bad)
	require.Error(t, err)
}

func TestImportAndAuditCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTemp(t, "config.yaml", "storage:\n  driver: sqlite\n  path: "+filepath.Join(dir, "z.db")+"\n")
	entries := writeTemp(t, "entries.yaml", `
entries:
  - id: morning
    scheduled_at: 2026-05-01 09:00
    message: Guten Morgen
    repeat: täglich
    enabled: ja
  - id: ""
    message: no id
`)
	out, err := run(t, "import", "--config", cfg, entries)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 entries")

	out, err = run(t, "audit", "--config", cfg, "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "ENTRY")
}
