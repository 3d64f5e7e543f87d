// Package registry is the Validator Registry (C3): it maps input files to
// the Tool Descriptors that apply to them, and owns the per-tool
// check/fix/parse contract every descriptor in catalog.go follows.
package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/resolver"
	"github.com/tinyland-inc/huskycat/pkg/toolcache"
)

var registryLog = logger.New("registry")

// DefaultTimeout is used by descriptors that don't override it.
const DefaultTimeout = 30 * time.Second

// SlowTimeout is used by descriptors that invoke heavier external checkers.
const SlowTimeout = 60 * time.Second

// ArgvFunc builds the argv for a check or fix invocation, given the target
// file and any extra configured flags. It never needs the resolved
// executable path: the Tool Resolver already supplies the right binary
// (direct, PATH, or container-runtime) as the process to exec; a
// container-fallback invocation reuses the same argv inside the image.
type ArgvFunc func(file string, extra []string) []string

// ParseFunc maps a child process's (exit code, stdout, stderr) into a
// ValidationResult. file and tool are supplied so the parser doesn't need
// to close over them.
type ParseFunc func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult

// Descriptor is the declarative record describing how to invoke and parse
// one external tool (§3 Tool Descriptor).
type Descriptor struct {
	Name       string
	Executable string
	// Extensions is a set of lower-cased file extensions (with leading dot)
	// this descriptor claims. Mutually exclusive with Predicate.
	Extensions map[string]bool
	// Predicate, when set, matches on path content instead of extension
	// (e.g. Ansible's "contains /playbooks/ or /roles/"). A predicate
	// descriptor must not also set Extensions, per §4.3.
	Predicate func(path string) bool

	CheckArgv ArgvFunc
	FixArgv   ArgvFunc
	Parse     ParseFunc

	FixConfidence model.FixConfidence
	Timeout       time.Duration
	DependsOn     []string // names of tools that must succeed first
	Slow          bool     // elided under fast mode
	ErrStream     string   // "stdout" or "stderr" - which stream carries diagnostics
}

// Matches reports whether this descriptor applies to path.
func (d Descriptor) Matches(path string) bool {
	if d.Predicate != nil {
		return d.Predicate(path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return d.Extensions[ext]
}

func (d Descriptor) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// Registry holds the enabled descriptor catalog and resolves applicable
// tools per file.
type Registry struct {
	descriptors []Descriptor
	resolver    *resolver.Resolver
}

// New builds a registry from the given descriptors (typically
// DefaultCatalog(), filtered by configuration) and a Tool Resolver.
func New(descriptors []Descriptor, r *resolver.Resolver) (*Registry, error) {
	if err := checkAcyclic(descriptors); err != nil {
		return nil, err
	}
	// Predicate descriptors must not also claim bare extensions.
	for _, d := range descriptors {
		if d.Predicate != nil && len(d.Extensions) > 0 {
			return nil, fmt.Errorf("descriptor %q: predicate descriptors must not also claim extensions", d.Name)
		}
	}
	return &Registry{descriptors: descriptors, resolver: r}, nil
}

// Descriptors returns the full enabled catalog.
func (r *Registry) Descriptors() []Descriptor {
	return r.descriptors
}

// ForFile returns every descriptor that applies to path.
func (r *Registry) ForFile(path string) []Descriptor {
	var out []Descriptor
	for _, d := range r.descriptors {
		if d.Matches(path) {
			out = append(out, d)
		}
	}
	return out
}

// checkAcyclic rejects a dependency set that forms a cycle, a configuration
// error detected at startup (§3 invariant).
func checkAcyclic(descriptors []Descriptor) error {
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(descriptors))
	var cyclePath []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		cyclePath = append(cyclePath, name)
		for _, dep := range byName[name].DependsOn {
			switch color[dep] {
			case gray:
				cyclePath = append(cyclePath, dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		cyclePath = cyclePath[:len(cyclePath)-1]
		color[name] = black
		return false
	}

	for _, d := range descriptors {
		if color[d.Name] == white {
			cyclePath = nil
			if visit(d.Name) {
				return fmt.Errorf("configuration error: dependency cycle detected involving tool %q", cyclePath[0])
			}
		}
	}
	return nil
}

// Check runs a descriptor's check invocation against file without
// modifying it.
func (r *Registry) Check(ctx context.Context, d Descriptor, file string, extraArgs []string) model.ValidationResult {
	return r.invoke(ctx, d, file, extraArgs, d.CheckArgv)
}

// Fix runs a descriptor's fix invocation, which may modify file in place.
func (r *Registry) Fix(ctx context.Context, d Descriptor, file string, extraArgs []string) model.ValidationResult {
	if d.FixArgv == nil {
		return r.Check(ctx, d, file, extraArgs)
	}
	result := r.invoke(ctx, d, file, extraArgs, d.FixArgv)
	result.Fixed = true
	return result
}

func (r *Registry) invoke(ctx context.Context, d Descriptor, file string, extraArgs []string, argv ArgvFunc) model.ValidationResult {
	start := time.Now()

	cmdPrefix, err := r.resolver.Resolve(ctx, d.Name, d.Executable)
	if err != nil {
		registryLog.Printf("tool %s unavailable for %s: %v", d.Name, file, err)
		return model.ValidationResult{
			Tool:     d.Name,
			File:     file,
			Success:  false,
			Errors:   []string{"tool unavailable"},
			Duration: time.Since(start),
		}
	}

	args := argv(file, extraArgs)
	fullArgs := append(append([]string{}, cmdPrefix.PrependArgs...), args...)

	timeout := d.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cmdPrefix.Executable, fullArgs...)
	if cmdPrefix.PathPrepend != "" {
		cmd.Env = append(os.Environ(), "PATH="+toolcache.PrependToPath(cmdPrefix.PathPrepend))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return model.ValidationResult{
			Tool:     d.Name,
			File:     file,
			Success:  false,
			Errors:   []string{fmt.Sprintf("timed out after %ds", int(timeout.Seconds()))},
			Duration: timeout,
		}
	}

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return model.ValidationResult{
			Tool:     d.Name,
			File:     file,
			Success:  false,
			Errors:   []string{fmt.Sprintf("tool unavailable: %v", runErr)},
			Duration: duration,
		}
	}

	result := d.Parse(d.Name, file, exitCode, stdout.Bytes(), stderr.Bytes())
	result.Duration = duration
	result.Success = len(result.Errors) == 0
	return result
}
