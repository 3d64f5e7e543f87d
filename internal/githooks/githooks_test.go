package githooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "hooks"), 0o755))
	return dir
}

func TestInstallWritesAllThreeHooksExecutable(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, Install(dir, "/usr/local/bin/huskycat", false))

	for _, name := range hookNames {
		path := filepath.Join(dir, ".git", "hooks", name)
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.NotZero(t, info.Mode()&0o100, "%s should be executable", name)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(content), "HOOK_VERSION="+HookVersion)
	}
}

func TestInstallIsIdempotentWithForce(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, Install(dir, "/usr/local/bin/huskycat", false))
	first, err := os.ReadFile(filepath.Join(dir, ".git", "hooks", "pre-commit"))
	require.NoError(t, err)

	require.NoError(t, Install(dir, "/usr/local/bin/huskycat", true))
	second, err := os.ReadFile(filepath.Join(dir, ".git", "hooks", "pre-commit"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestInstallRefusesToOverwriteForeignHook(t *testing.T) {
	dir := initRepo(t)
	path := filepath.Join(dir, ".git", "hooks", "pre-commit")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho custom\n"), 0o755))

	err := Install(dir, "/usr/local/bin/huskycat", false)
	require.Error(t, err)
}

func TestCheckCommitMessageAcceptsConventionalFormat(t *testing.T) {
	require.NoError(t, CheckCommitMessage("feat(scheduler): add fail-fast mode"))
	require.NoError(t, CheckCommitMessage("fix: correct timeout math"))
	require.NoError(t, CheckCommitMessage("chore!: bump go version"))
}

func TestCheckCommitMessageRejectsBadFormat(t *testing.T) {
	err := CheckCommitMessage("updated stuff")
	require.Error(t, err)
}

func TestCheckCommitMessagePassesThroughMergeAndFixup(t *testing.T) {
	require.NoError(t, CheckCommitMessage("Merge branch 'main' into feature"))
	require.NoError(t, CheckCommitMessage("Revert \"feat: broken thing\""))
	require.NoError(t, CheckCommitMessage("fixup! feat: wip"))
	require.NoError(t, CheckCommitMessage("squash! fix: typo"))
}
