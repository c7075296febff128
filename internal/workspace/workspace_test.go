package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseline/internal/config"
)

func TestWorkspace_RunTests_Passing(t *testing.T) {
	ws := New(t.TempDir(), config.Checks{
		Test: []string{"sh", "-c", "echo ok"},
	})

	result, err := ws.RunTests(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "ok")
}

func TestWorkspace_RunTests_Failing(t *testing.T) {
	ws := New(t.TempDir(), config.Checks{
		Test: []string{"sh", "-c", "echo compile error >&2; exit 2"},
	})

	result, err := ws.RunTests(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 2, result.ExitCode)
	assert.Contains(t, result.Output, "compile error")
}

func TestWorkspace_RunTypecheck_Unconfigured(t *testing.T) {
	ws := New(t.TempDir(), config.Checks{})

	result, err := ws.RunTypecheck(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestWorkspace_RunBuild_CommandNotFound(t *testing.T) {
	ws := New(t.TempDir(), config.Checks{
		Build: []string{"definitely-not-a-real-binary-xyz"},
	})

	_, err := ws.RunBuild(context.Background())
	assert.Error(t, err)
}

func TestWorkspace_RunTests_RunsInRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "marker.txt"), []byte("here"), 0o644))

	ws := New(root, config.Checks{
		Test: []string{"cat", "marker.txt"},
	})

	result, err := ws.RunTests(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Contains(t, result.Output, "here")
}

func TestWorkspace_MissingOwnedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "exists.go"), []byte("package main"), 0o644))

	ws := New(root, config.Checks{})

	missing := ws.MissingOwnedFiles([]string{"exists.go", "absent.go", "also/absent.go"})
	assert.Equal(t, []string{"absent.go", "also/absent.go"}, missing)
}

func TestWorkspace_MissingOwnedFiles_AllPresent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))

	ws := New(root, config.Checks{})

	assert.Empty(t, ws.MissingOwnedFiles([]string{"a.go"}))
}

func TestWorkspace_Snapshot_NotGitRepo(t *testing.T) {
	ws := New(t.TempDir(), config.Checks{})

	snapshot, err := ws.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestWorkspace_ModifiedOutside_NotGitRepo(t *testing.T) {
	ws := New(t.TempDir(), config.Checks{})

	outside, err := ws.ModifiedOutside(nil, []string{"owned.go"})
	require.NoError(t, err)
	assert.Empty(t, outside)
}
