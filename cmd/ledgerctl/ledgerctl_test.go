package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bizledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:"+filepath.Join(dir, "ledger.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("GIN_MODE", "debug")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestCodeNextConsumesSequence(t *testing.T) {
	setupEnv(t)

	first, err := execute(t, "code", "next", "sales", "DV")
	require.NoError(t, err)
	assert.Regexp(t, `^V-DV\d{2}-00001$`, first)

	second, err := execute(t, "code", "next", "sales", "DV")
	require.NoError(t, err)
	assert.Regexp(t, `^V-DV\d{2}-00002$`, second)

	other, err := execute(t, "code", "next", "purchase", "FA")
	require.NoError(t, err)
	assert.Regexp(t, `^A-FA\d{2}-00001$`, other)

	_, err = execute(t, "code", "next", "retail", "DV")
	assert.Error(t, err)
}

func TestSnapshotExportImport(t *testing.T) {
	dir := setupEnv(t)

	_, err := execute(t, "code", "next", "internal", "BL")
	require.NoError(t, err)

	file := filepath.Join(dir, "snap.json")
	_, err = execute(t, "snapshot", "export", file)
	require.NoError(t, err)

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.NotEmpty(t, snap.Counters)

	out, err := execute(t, "snapshot", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0 documents")

	// counters survive the round trip
	next, err := execute(t, "code", "next", "internal", "BL")
	require.NoError(t, err)
	assert.Regexp(t, `^I-BL\d{2}-00002$`, next)
}

func TestRemoteCommandsNeedReplication(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "sync", "pull")
	assert.Error(t, err)

	_, err = execute(t, "backup", "create", "nightly")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "token", "alice", "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "."))
}
