package procmanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

func TestSaveRunAtomicAndLatestPointer(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	record := model.RunRecord{
		RunID:     "run-1",
		StartTime: time.Now(),
		Files:     []string{"a.py"},
		Status:    model.RunRunning,
		PID:       os.Getpid(),
	}
	require.NoError(t, m.SaveRun(record))

	data, err := os.ReadFile(filepath.Join(dir, "runs", "run-1.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "run-1")

	latest, err := m.latestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "run-1", latest.RunID)
}

func TestShouldProceedAllowsWhenNoPriorRun(t *testing.T) {
	m := New(t.TempDir())
	ok, err := m.ShouldProceedWithCommit([]string{"a.py"}, false, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestShouldProceedBlocksOnLiveOverlappingRun(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.SaveRun(model.RunRecord{
		RunID: "run-2", Files: []string{"a.py"}, Status: model.RunRunning, PID: os.Getpid(),
	}))

	ok, err := m.ShouldProceedWithCommit([]string{"a.py"}, false, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShouldProceedAllowsWhenRunningButNonOverlapping(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.SaveRun(model.RunRecord{
		RunID: "run-3", Files: []string{"other.py"}, Status: model.RunRunning, PID: os.Getpid(),
	}))

	ok, err := m.ShouldProceedWithCommit([]string{"a.py"}, false, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestShouldProceedWarnsAndAllowsOnFailedOverlapNonTTY(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.SaveRun(model.RunRecord{
		RunID: "run-4", Files: []string{"a.py"}, Status: model.RunFailed,
	}))

	ok, err := m.ShouldProceedWithCommit([]string{"a.py"}, false, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestShouldProceedPromptsOnFailedOverlapTTY(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.SaveRun(model.RunRecord{
		RunID: "run-5", Files: []string{"a.py"}, Status: model.RunFailed,
	}))

	deny := func(string, bool) bool { return false }
	ok, err := m.ShouldProceedWithCommit([]string{"a.py"}, true, deny)
	require.NoError(t, err)
	require.False(t, ok)

	allow := func(string, bool) bool { return true }
	ok, err = m.ShouldProceedWithCommit([]string{"a.py"}, true, allow)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCleanupZombiesPromotesDeadRunningToFailed(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.SaveRun(model.RunRecord{
		RunID: "run-6", Files: []string{"a.py"}, Status: model.RunRunning, PID: 999999,
	}))
	require.NoError(t, m.writePIDFile("run-6", 999999))

	require.NoError(t, m.CleanupZombies())

	record, err := m.readRun("run-6")
	require.NoError(t, err)
	require.Equal(t, model.RunFailed, record.Status)

	_, err = os.Stat(filepath.Join(dir, "runs", "pids", "run-6.pid"))
	require.True(t, os.IsNotExist(err))
}

func TestCleanupZombiesLeavesLiveProcessAlone(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.SaveRun(model.RunRecord{
		RunID: "run-7", Files: []string{"a.py"}, Status: model.RunRunning, PID: os.Getpid(),
	}))
	require.NoError(t, m.writePIDFile("run-7", os.Getpid()))

	require.NoError(t, m.CleanupZombies())

	record, err := m.readRun("run-7")
	require.NoError(t, err)
	require.Equal(t, model.RunRunning, record.Status)
}

func TestFileSetsOverlap(t *testing.T) {
	require.True(t, fileSetsOverlap([]string{"a", "b"}, []string{"b", "c"}))
	require.False(t, fileSetsOverlap([]string{"a"}, []string{"b"}))
}

func TestHashFileSetOrderIndependent(t *testing.T) {
	require.Equal(t, hashFileSet([]string{"a", "b"}), hashFileSet([]string{"b", "a"}))
	require.NotEqual(t, hashFileSet([]string{"a", "b"}), hashFileSet([]string{"a", "c"}))
}
