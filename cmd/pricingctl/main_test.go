package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/pricebook/internal/domain"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "pricebook.db") + "\n  max_open_conns: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestImportAndListModes(t *testing.T) {
	cfgPath := writeConfig(t)
	staging := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "q3"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "q3", "manifest.jsonl"), []byte(
		`{"id":"a","name":"Framing labor","base_price":80,"cost_code":"150"}
{"id":"b","name":"Lumber","base_price":20,"cost_code":"510"}
`), 0o644))

	out, err := run(t, "import", "-c", cfgPath, "--staging-dir", staging, "--source", "q3")
	require.NoError(t, err)
	assert.Contains(t, out, `"processed_items": 2`)
	assert.Contains(t, out, `"labor": 1`)

	out, err = run(t, "modes", "list", "-c", cfgPath, "--org", "org-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rush Job")
	assert.Contains(t, out, string(domain.ModeKindResetToBaseline))

	out, err = run(t, "jobs", "list", "-c", cfgPath, "--org", "org-1")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestJobsStatus_NotFound(t *testing.T) {
	cfgPath := writeConfig(t)
	_, err := run(t, "jobs", "status", "missing", "-c", cfgPath, "--org", "org-1")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}
