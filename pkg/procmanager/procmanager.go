// Package procmanager is the Process Manager (C7): it supports
// non-blocking git-hook execution by forking a detached child that runs
// the full validation pipeline, while persisting enough state under a
// per-user state directory for the next invocation to reason about the
// previous one (§4.7).
package procmanager

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

var procLog = logger.New("procmanager")

// Prompter asks a yes/no question on a TTY; nil means no interactive
// prompt is available (non-TTY default applies, per §4.7).
type Prompter func(question string, defaultYes bool) bool

// Manager owns the on-disk run-record state under StateDir (§6:
// runs/, runs/pids/, runs/logs/).
type Manager struct {
	StateDir string

	mu sync.Mutex
}

// New constructs a Manager rooted at stateDir (typically ~/.huskycat).
func New(stateDir string) *Manager {
	return &Manager{StateDir: stateDir}
}

func (m *Manager) runsDir() string { return filepath.Join(m.StateDir, "runs") }
func (m *Manager) pidsDir() string { return filepath.Join(m.StateDir, "runs", "pids") }
func (m *Manager) logsDir() string { return filepath.Join(m.StateDir, "runs", "logs") }

func (m *Manager) ensureDirs() error {
	for _, dir := range []string{m.runsDir(), m.pidsDir(), m.logsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state directory %s: %w", dir, err)
		}
	}
	return nil
}

// ForkValidation spawns command with args as a detached child that will
// run the full validation pipeline against files, redirecting standard
// streams to a per-run log file and recording its PID. It returns the
// new run id immediately; the caller (the parent) must return within
// ~100ms in the common case (§4.7).
func (m *Manager) ForkValidation(files []string, command string, args []string) (runID string, err error) {
	if err := m.ensureDirs(); err != nil {
		return "", err
	}

	runID = uuid.NewString()
	logPath := filepath.Join(m.logsDir(), runID+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening run log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(command, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("fork failed: %w", err)
	}

	record := model.RunRecord{
		RunID:       runID,
		StartTime:   time.Now(),
		FileSetHash: hashFileSet(files),
		Files:       files,
		Status:      model.RunRunning,
		PID:         cmd.Process.Pid,
		LogPath:     logPath,
	}
	if err := m.SaveRun(record); err != nil {
		return "", err
	}
	if err := m.writePIDFile(runID, cmd.Process.Pid); err != nil {
		return "", err
	}

	go func() { _ = cmd.Wait() }() // parent does not block on the child

	return runID, nil
}

// ShouldProceedWithCommit implements §4.7's decision: deny if an
// overlapping run is still in flight, prompt (or warn) if the most recent
// overlapping finalized run failed, otherwise allow.
func (m *Manager) ShouldProceedWithCommit(files []string, tty bool, prompt Prompter) (bool, error) {
	latest, err := m.latestRun()
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}

	overlaps := fileSetsOverlap(latest.Files, files)

	if latest.Status == model.RunRunning {
		if overlaps && processAlive(latest.PID) {
			procLog.Printf("run %s still in flight for overlapping files, blocking commit", latest.RunID)
			return false, nil
		}
		return true, nil
	}

	if latest.Status == model.RunFailed && overlaps {
		if tty && prompt != nil {
			return prompt(fmt.Sprintf("validation run %s failed for overlapping files; commit anyway?", latest.RunID), false), nil
		}
		procLog.Printf("warning: proceeding with commit despite failed run %s (non-interactive)", latest.RunID)
		return true, nil
	}

	return true, nil
}

// CleanupZombies reaps PID entries whose process no longer exists,
// promoting any still-"running" Run Record they belong to to "failed"
// (§4.7: a crashed child otherwise leaves its record stuck at running).
func (m *Manager) CleanupZombies() error {
	entries, err := os.ReadDir(m.pidsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading pid directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		runID := strings.TrimSuffix(entry.Name(), ".pid")
		pidPath := filepath.Join(m.pidsDir(), entry.Name())

		data, err := os.ReadFile(pidPath)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			_ = os.Remove(pidPath)
			continue
		}
		if processAlive(pid) {
			continue
		}

		if record, err := m.readRun(runID); err == nil && record.Status == model.RunRunning {
			record.Status = model.RunFailed
			record.EndTime = time.Now()
			if err := m.SaveRun(*record); err != nil {
				procLog.Printf("failed to promote stale run %s to failed: %v", runID, err)
			}
		}
		_ = os.Remove(pidPath)
	}
	return nil
}

// SaveRun persists record atomically: write to a temp file in the same
// directory, then rename into place, so readers never observe a partial
// write (§4.7, §5).
func (m *Manager) SaveRun(record model.RunRecord) error {
	if err := m.ensureDirs(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}

	finalPath := filepath.Join(m.runsDir(), record.RunID+".json")
	tmp, err := os.CreateTemp(m.runsDir(), record.RunID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp run record: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp run record: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming run record into place: %w", err)
	}

	return m.writeLatestPointer(record.RunID)
}

func (m *Manager) latestPointerPath() string {
	return filepath.Join(m.runsDir(), "latest")
}

func (m *Manager) writeLatestPointer(runID string) error {
	lock := flock.New(m.latestPointerPath() + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking latest-run pointer: %w", err)
	}
	if !locked {
		return fmt.Errorf("latest-run pointer is locked by another process")
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(m.runsDir(), "latest.*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(runID); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	tmp.Close()
	return os.Rename(tmpPath, m.latestPointerPath())
}

func (m *Manager) latestRun() (*model.RunRecord, error) {
	data, err := os.ReadFile(m.latestPointerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading latest-run pointer: %w", err)
	}
	return m.readRun(strings.TrimSpace(string(data)))
}

// LatestRun returns the most recently saved Run Record, or nil if none
// has been recorded yet. Used by the status command to report on the
// last non-blocking hook run.
func (m *Manager) LatestRun() (*model.RunRecord, error) {
	return m.latestRun()
}

func (m *Manager) readRun(runID string) (*model.RunRecord, error) {
	data, err := os.ReadFile(filepath.Join(m.runsDir(), runID+".json"))
	if err != nil {
		return nil, err
	}
	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parsing run record %s: %w", runID, err)
	}
	return &record, nil
}

func (m *Manager) writePIDFile(runID string, pid int) error {
	path := filepath.Join(m.pidsDir(), runID+".pid")
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func fileSetsOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if set[f] {
			return true
		}
	}
	return false
}

// hashFileSet produces a stable, order-independent identifier for a file
// set, used to compare staged-file overlaps across runs.
func hashFileSet(files []string) string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
