package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/registry"
	"github.com/tinyland-inc/huskycat/pkg/resolver"
)

func testDescriptor() registry.Descriptor {
	return registry.Descriptor{
		Name:          "ruff",
		Executable:    "true",
		Extensions:    map[string]bool{".py": true},
		FixConfidence: model.Safe,
		CheckArgv:     func(file string, extra []string) []string { return nil },
		FixArgv:       func(file string, extra []string) []string { return nil },
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			return model.ValidationResult{Tool: tool, File: file, Success: false, Errors: []string{"needs formatting"}}
		},
	}
}

func newTestServer(t *testing.T) *Server {
	reg, err := registry.New([]registry.Descriptor{testDescriptor()}, resolver.New(nil, nil, ".", ""))
	require.NoError(t, err)
	return New(reg)
}

func TestCheckAggregatesAcrossFiles(t *testing.T) {
	s := newTestServer(t)
	results, err := s.check(context.Background(), []string{"a.py", "b.py"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.False(t, results[0].Success)
}

func TestApplySetsFixedOnMatchingTool(t *testing.T) {
	s := newTestServer(t)
	result, err := s.apply(context.Background(), "a.py", "ruff")
	require.NoError(t, err)
	require.True(t, result.Fixed)
}

func TestApplyRejectsUnknownTool(t *testing.T) {
	s := newTestServer(t)
	_, err := s.apply(context.Background(), "a.py", "nonexistent")
	require.Error(t, err)
}

func TestNewMCPServerBuildsServer(t *testing.T) {
	s := newTestServer(t)
	server := s.NewMCPServer()
	require.NotNil(t, server)
}
