package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobuild/geobuild/pkg/stores"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	varsFile, verbose, jsonOutput = "", false, false

	cmd := newRootCommand("v1.2.3", "abc123", "2026-01-01")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStagesCommand(t *testing.T) {
	out, err := execute(t, "stages")
	require.NoError(t, err)
	assert.Contains(t, out, "0: handoff\n")
	assert.Contains(t, out, "lint, render-cmake, render-manifest")

	out, err = execute(t, "stages", "--dot")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph GenerationPass {")
	assert.Contains(t, out, `"write" -> "advisories";`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "geobuild v1.2.3")
	assert.Contains(t, out, "commit:  abc123")
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "state.db")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geobuild.yaml"), []byte("state_path: "+db+"\n"), 0o644))

	ctx := context.Background()
	store, err := stores.Open(ctx, stores.Config{Path: db})
	require.NoError(t, err)
	require.NoError(t, store.CreatePass(ctx, &stores.Pass{ID: "p1", Project: "demo", ProjectDir: dir}))
	require.NoError(t, store.CompletePass(ctx, "p1", stores.PassStatusFailed, "ScriptAbort", "fatal_error: nope"))
	claimed, err := store.ClaimCheck(ctx, "cpm:fmt", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.RecordCheckResult(ctx, "cpm:fmt", stores.CheckStatusUpdate, "10.2.1"))
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--project", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "ScriptAbort: fatal_error: nope")

	out, err = execute(t, "history", "--project", dir, "--checks", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"key": "cpm:fmt"`)
	assert.Contains(t, out, `"latest": "10.2.1"`)

	out, err = execute(t, "history", "--project", dir, "--checks", "cpm:fmt")
	require.NoError(t, err)
	assert.Contains(t, out, "cpm:fmt")
	assert.Contains(t, out, "10.2.1")

	_, err = execute(t, "history", "--project", dir, "--checks", "cpm:other")
	require.ErrorIs(t, err, stores.ErrNotFound)

	_, err = execute(t, "history", "--project", dir, "cpm:fmt")
	require.Error(t, err)
}

func TestPoliciesCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "policies"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies", "no-lto.rego"), []byte(`# Keep LTO off.
# severity: error
package project.lint.lto

import rego.v1

deny contains "LTO is disabled" if input.build.lto
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geobuild.yaml"), []byte("policy:\n  dir: policies\n  disabled: [flag-style]\n"), 0o644))

	out, err := execute(t, "policies", "--project", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `flag-style\s+warning\s+false\s+built-in`, out)
	assert.Regexp(t, `no-lto\s+error\s+true\s+\S+no-lto\.rego\s+Keep LTO off\.`, out)

	out, err = execute(t, "policies", "show", "no-lto", "--project", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "package project.lint.lto")

	_, err = execute(t, "policies", "show", "missing", "--project", dir)
	require.Error(t, err)
}

func TestGenerateReportsBadVarsFile(t *testing.T) {
	_, err := execute(t, "generate", "--vars-file", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open vars file")
}

func TestRelevantEvents(t *testing.T) {
	inputs := []string{"/p/geobuild.star", "/p/policies"}

	assert.True(t, relevant(fsnotify.Event{Name: "/p/geobuild.star", Op: fsnotify.Write}, inputs))
	assert.True(t, relevant(fsnotify.Event{Name: "/p/policies/extra.rego", Op: fsnotify.Create}, inputs))
	assert.False(t, relevant(fsnotify.Event{Name: "/p/geobuild.star", Op: fsnotify.Chmod}, inputs))
	assert.False(t, relevant(fsnotify.Event{Name: "/p/build/geobuild-gen.cmake", Op: fsnotify.Write}, inputs))
}
