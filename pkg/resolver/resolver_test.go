package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

func TestResolveBundledTierWins(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "fake-tool")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\necho hi\n"), 0755))

	r := New(map[string]string{"fake": binPath}, nil, dir, dir)
	cmd, err := r.Resolve(context.Background(), "fake", "fake-tool")
	require.NoError(t, err)
	require.Equal(t, model.TierBundled, cmd.Tier)
	require.Equal(t, binPath, cmd.Executable)
	require.Equal(t, dir, cmd.PathPrepend)
}

func TestResolveLocalPathFallback(t *testing.T) {
	r := New(nil, nil, t.TempDir(), "")
	cmd, err := r.Resolve(context.Background(), "sh", "sh")
	require.NoError(t, err)
	require.Equal(t, model.TierLocal, cmd.Tier)
	require.Empty(t, cmd.PathPrepend)
}

func TestResolveUnavailable(t *testing.T) {
	r := New(nil, nil, t.TempDir(), "")
	_, err := r.Resolve(context.Background(), "definitely-not-a-real-tool", "definitely-not-a-real-tool-xyz")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrToolUnavailable))
}

func TestResolveMemoizes(t *testing.T) {
	r := New(nil, nil, t.TempDir(), "")
	cmd1, err1 := r.Resolve(context.Background(), "sh", "sh")
	require.NoError(t, err1)
	// Mutate state that would change the outcome; memoized result must stick.
	r.bundled = map[string]string{"sh": "/should-not-be-used"}
	cmd2, err2 := r.Resolve(context.Background(), "sh", "sh")
	require.NoError(t, err2)
	require.Equal(t, cmd1, cmd2)
}
