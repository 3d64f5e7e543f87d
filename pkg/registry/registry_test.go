package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/resolver"
)

func trueDescriptor(name string, extensions ...string) Descriptor {
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[e] = true
	}
	return Descriptor{
		Name:       name,
		Executable: "true",
		Extensions: extSet,
		CheckArgv:  func(file string, extra []string) []string { return nil },
		FixArgv:    func(file string, extra []string) []string { return nil },
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			return model.ValidationResult{Tool: tool, File: file}
		},
	}
}

func TestNewRejectsCycles(t *testing.T) {
	descriptors := []Descriptor{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	_, err := New(descriptors, resolver.New(nil, nil, ".", ""))
	require.Error(t, err)
}

func TestNewRejectsPredicateWithExtensions(t *testing.T) {
	descriptors := []Descriptor{
		{Name: "a", Extensions: map[string]bool{".py": true}, Predicate: func(string) bool { return true }},
	}
	_, err := New(descriptors, resolver.New(nil, nil, ".", ""))
	require.Error(t, err)
}

func TestForFileMatchesByExtension(t *testing.T) {
	reg, err := New([]Descriptor{trueDescriptor("ruff", ".py")}, resolver.New(nil, nil, ".", ""))
	require.NoError(t, err)
	require.Len(t, reg.ForFile("main.py"), 1)
	require.Len(t, reg.ForFile("main.go"), 0)
}

func TestCheckRunsResolvedExecutable(t *testing.T) {
	reg, err := New([]Descriptor{trueDescriptor("ruff", ".py")}, resolver.New(nil, nil, ".", ""))
	require.NoError(t, err)
	d := reg.ForFile("main.py")[0]

	result := reg.Check(context.Background(), d, "main.py", nil)
	require.True(t, result.Success)
	require.False(t, result.Fixed)
}

func TestFixSetsFixedTrue(t *testing.T) {
	reg, err := New([]Descriptor{trueDescriptor("ruff", ".py")}, resolver.New(nil, nil, ".", ""))
	require.NoError(t, err)
	d := reg.ForFile("main.py")[0]

	result := reg.Fix(context.Background(), d, "main.py", nil)
	require.True(t, result.Fixed)
}

func TestFixFallsBackToCheckWithoutFixArgv(t *testing.T) {
	d := trueDescriptor("mypy", ".py")
	d.FixArgv = nil
	reg, err := New([]Descriptor{d}, resolver.New(nil, nil, ".", ""))
	require.NoError(t, err)

	result := reg.Fix(context.Background(), reg.ForFile("main.py")[0], "main.py", nil)
	require.False(t, result.Fixed)
}

func TestCheckReportsToolUnavailable(t *testing.T) {
	d := Descriptor{
		Name:       "nonexistent-tool",
		Executable: "definitely-not-a-real-binary-xyz",
		Extensions: map[string]bool{".py": true},
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			return model.ValidationResult{Tool: tool, File: file}
		},
	}
	reg, err := New([]Descriptor{d}, resolver.New(nil, nil, ".", ""))
	require.NoError(t, err)

	result := reg.Check(context.Background(), reg.ForFile("main.py")[0], "main.py", nil)
	require.False(t, result.Success)
	require.Contains(t, result.Errors[0], "unavailable")
}

// TestCheckPutsBundledDirOnPath verifies a bundled tool's own PATH lookups
// (e.g. a linter that shells out to a sibling formatter) see the cache
// directory ahead of the host PATH, per resolver.Command.PathPrepend.
func TestCheckPutsBundledDirOnPath(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "prints-path")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf '%s' \"$PATH\"\n"), 0o755))

	var captured string
	d := Descriptor{
		Name:       "prints-path",
		Executable: "prints-path",
		Extensions: map[string]bool{".py": true},
		CheckArgv:  func(file string, extra []string) []string { return nil },
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			captured = string(stdout)
			return model.ValidationResult{Tool: tool, File: file}
		},
	}

	res := resolver.New(map[string]string{"prints-path": script}, nil, ".", dir)
	reg, err := New([]Descriptor{d}, res)
	require.NoError(t, err)

	reg.Check(context.Background(), reg.ForFile("main.py")[0], "main.py", nil)
	require.Contains(t, captured, dir)
}
