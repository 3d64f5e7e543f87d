// Package dispatcher is the Dispatcher / Entry (C9): it owns the full
// startup orchestration described in §4.9 and wires every other component
// together for a single invocation.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tinyland-inc/huskycat/internal/gitutil"
	"github.com/tinyland-inc/huskycat/pkg/adapters"
	"github.com/tinyland-inc/huskycat/pkg/config"
	"github.com/tinyland-inc/huskycat/pkg/fixpolicy"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/metrics"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/procmanager"
	"github.com/tinyland-inc/huskycat/pkg/progressdisplay"
	"github.com/tinyland-inc/huskycat/pkg/registry"
	"github.com/tinyland-inc/huskycat/pkg/resolver"
	"github.com/tinyland-inc/huskycat/pkg/scheduler"
	"github.com/tinyland-inc/huskycat/pkg/toolcache"
)

var dispatchLog = logger.New("dispatcher")

// Request is everything the caller (cmd/huskycat) has already gathered
// from flags and the environment before the dispatcher takes over.
type Request struct {
	Mode          model.Mode
	Files         []string // explicit file/directory arguments
	Staged        bool     // take the file set from staged files instead
	StdinFileList bool     // Pipeline mode: read a newline-delimited list from stdin
	Fix           bool
	Unsafe        bool
	Fast          bool
	TTY           bool
	WorkDir       string
	StateDir      string // defaults to ~/.huskycat
	Out           io.Writer
	Stdin         io.Reader
	Metrics       *metrics.Recorder // optional: Pipeline mode daemons observe tool durations

	// NonblockingOverride overrides the config/env-derived nonblocking_hooks
	// flag for this invocation, e.g. a --nonblocking=false CLI flag.
	NonblockingOverride *bool
}

// Outcome is the fully-resolved result of one dispatch, ready for the
// caller to turn into a process exit code.
type Outcome struct {
	Results  []model.ValidationResult
	ExitCode int
}

// Bundle is optionally supplied by a self-contained distribution binary
// that embeds native tool binaries (§4.1); nil for source builds.
var Bundle *toolcache.Bundle

// ContainerImages maps tool name to container fallback image (§4.2 tier 4).
var ContainerImages resolver.ContainerImages

// Run executes the full orchestration sequence from §4.9.
func Run(ctx context.Context, req Request) (Outcome, error) {
	if req.Out == nil {
		req.Out = os.Stdout
	}
	if req.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Outcome{}, fmt.Errorf("configuration error: resolving state directory: %w", err)
		}
		req.StateDir = filepath.Join(home, ".huskycat")
	}

	adapter, err := adapters.ForMode(req.Mode)
	if err != nil {
		return Outcome{}, err
	}

	extractor := toolcache.New(filepath.Join(req.StateDir, "tools"))
	bundledPaths := extractor.Ensure(Bundle)

	cfg, err := config.Load(req.WorkDir, config.Overrides{NonblockingHooks: req.NonblockingOverride})
	if err != nil {
		return Outcome{}, err
	}

	res := resolver.New(bundledPaths, ContainerImages, req.WorkDir, filepath.Join(req.StateDir, "tools"))
	enabled := EnabledDescriptors(registry.DefaultCatalog(), cfg)
	reg, err := registry.New(enabled, res)
	if err != nil {
		return Outcome{}, err
	}

	fast := req.Fast || adapter.FastDefault()

	if req.Mode == model.ModeGitHooks && cfg.FeatureFlags.NonblockingHooks {
		return runNonBlocking(ctx, req, cfg)
	}

	files, err := resolveFiles(req, cfg)
	if err != nil {
		return Outcome{}, err
	}

	items := buildWorkItems(files, reg, fast)

	var display *progressdisplay.Display
	if cfg.FeatureFlags.TUIProgress && adapter.ShowProgress(req.TTY) {
		display = progressdisplay.New(progressdisplay.Options{Enabled: true, TTY: req.TTY, Out: os.Stderr})
		defer display.Stop()
	}

	fixCtx := fixpolicy.Context{Mode: req.Mode, TTY: req.TTY, FixRequested: req.Fix, Unsafe: req.Unsafe}
	var prompt fixpolicy.Prompter
	if adapter.Interactive(req.TTY) {
		if req.TTY {
			// A real controlling terminal: drive the prompt through a form
			// instead of req.Stdin, which may be piped (the staged file list).
			prompt = fixpolicy.HuhPrompter()
		} else {
			prompt = fixpolicy.StdinPrompter(req.Stdin)
		}
	}

	sched := scheduler.New(scheduler.Options{
		Sequential: !cfg.FeatureFlags.ParallelExecution,
		FailFast:   adapter.FailFast(),
		Progress: func(tool string, state model.ToolState, counts scheduler.Counts) {
			if display != nil {
				display.Update(tool, state, progressdisplay.Counts(counts))
			}
		},
	})

	invoke := func(ctx context.Context, d registry.Descriptor, file string) model.ValidationResult {
		extra := cfg.ToolExtraArgs(d.Name)
		start := time.Now()
		var result model.ValidationResult
		if fixpolicy.ShouldFix(d.FixConfidence, fixCtx, prompt) {
			result = reg.Fix(ctx, d, file, extra)
		} else {
			result = reg.Check(ctx, d, file, extra)
		}
		if req.Metrics != nil {
			req.Metrics.Observe(d.Name, time.Since(start), result.Success)
		}
		return result
	}

	results, err := sched.Run(ctx, items, invoke)
	if err != nil {
		return Outcome{}, err
	}

	toolUnavailable := false
	for _, r := range results {
		if len(r.Errors) == 1 && r.Errors[0] == "tool unavailable" {
			toolUnavailable = true
			break
		}
	}

	if err := adapter.Render(req.Out, results); err != nil {
		return Outcome{}, fmt.Errorf("rendering output: %w", err)
	}

	if cfg.FeatureFlags.CacheResults {
		pm := procmanager.New(req.StateDir)
		record := model.RunRecord{
			StartTime:    time.Now(),
			EndTime:      time.Now(),
			Files:        files,
			Status:       statusFor(results),
			PerToolState: map[string]model.ToolState{},
			PID:          os.Getpid(),
		}
		record.RunID = newRunID()
		if err := pm.SaveRun(record); err != nil {
			dispatchLog.Printf("failed to persist run record: %v", err)
		}
	}

	return Outcome{Results: results, ExitCode: adapter.ExitCode(results, toolUnavailable)}, nil
}

// runNonBlocking implements §4.9 step 5 / §4.7's fork flow for GitHooks
// mode with nonblocking_hooks on: the parent forks a child that re-enters
// Run with nonblocking effectively disabled, and returns immediately.
func runNonBlocking(ctx context.Context, req Request, cfg config.Config) (Outcome, error) {
	pm := procmanager.New(req.StateDir)
	_ = pm.CleanupZombies()

	files, err := resolveFiles(req, cfg)
	if err != nil {
		return Outcome{}, err
	}

	proceed, err := pm.ShouldProceedWithCommit(files, req.TTY, fixpolicy.StdinPrompter(req.Stdin))
	if err != nil {
		return Outcome{}, err
	}
	if !proceed {
		return Outcome{ExitCode: adapters.ExitToolError}, nil
	}

	self, err := os.Executable()
	if err != nil {
		self = "huskycat"
	}
	childArgs := append([]string{"validate", "--mode", "git-hooks", "--nonblocking=false"}, files...)

	if _, err := pm.ForkValidation(files, self, childArgs); err != nil {
		dispatchLog.Printf("process-manager error: fork failed, proceeding inline: %v", err)
		req.Staged = false
		req.Files = files
		return runInline(ctx, req, cfg)
	}

	return Outcome{ExitCode: adapters.ExitPass}, nil
}

func runInline(ctx context.Context, req Request, cfg config.Config) (Outcome, error) {
	// Run reloads configuration, so the non-blocking flag is turned off
	// through the override; otherwise Run would take the fork path again.
	off := false
	req.NonblockingOverride = &off
	return Run(ctx, req)
}

func statusFor(results []model.ValidationResult) model.RunStatus {
	for _, r := range results {
		if !r.Success {
			return model.RunFailed
		}
	}
	return model.RunPassed
}

// resolveFiles implements §4.9 step 6: explicit args, or staged files, or
// (Pipeline) a newline-delimited stdin list, filtered by exclude patterns.
func resolveFiles(req Request, cfg config.Config) ([]string, error) {
	var files []string

	switch {
	case req.Staged:
		root, err := gitutil.FindRoot(req.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("input error: %w", err)
		}
		staged, err := gitutil.StagedFiles(root)
		if err != nil {
			return nil, fmt.Errorf("input error: %w", err)
		}
		files = staged

	case req.StdinFileList && len(req.Files) == 0:
		files = readLines(req.Stdin)

	default:
		for _, arg := range req.Files {
			info, err := os.Stat(arg)
			if err != nil || !info.IsDir() {
				files = append(files, arg)
				continue
			}
			_ = filepath.Walk(arg, func(path string, fi os.FileInfo, err error) error {
				if err == nil && !fi.IsDir() {
					files = append(files, path)
				}
				return nil
			})
		}
	}

	filtered := files[:0]
	for _, f := range files {
		if !cfg.ExcludeMatch(f) {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

func readLines(r io.Reader) []string {
	if r == nil {
		return nil
	}
	var files []string
	buf := make([]byte, 0, 4096)
	scan := func(data []byte) {
		start := 0
		for i, b := range data {
			if b == '\n' {
				if line := string(data[start:i]); line != "" {
					files = append(files, line)
				}
				start = i + 1
			}
		}
	}
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	scan(buf)
	return files
}

func buildWorkItems(files []string, reg *registry.Registry, fast bool) []scheduler.WorkItem {
	var items []scheduler.WorkItem
	for _, file := range files {
		for _, d := range reg.ForFile(file) {
			if fast && d.Slow {
				continue
			}
			items = append(items, scheduler.WorkItem{File: file, Descriptor: d})
		}
	}
	return items
}

// EnabledDescriptors filters a catalog down to the tools cfg has enabled.
// Exported so callers that need a Registry without a full Run (the MCP
// server command) can build one the same way.
func EnabledDescriptors(all []registry.Descriptor, cfg config.Config) []registry.Descriptor {
	var out []registry.Descriptor
	for _, d := range all {
		if cfg.ToolEnabled(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

var runIDCounter uint64

// newRunID produces a process-unique run identifier without depending on
// time.Now()'s monotonic component alone, since multiple runs in the same
// process (tests, repeated invocations) must not collide.
func newRunID() string {
	runIDCounter++
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), runIDCounter)
}
