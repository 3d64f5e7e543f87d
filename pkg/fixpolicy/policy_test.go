package fixpolicy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

func TestShouldFixTable(t *testing.T) {
	tests := []struct {
		name       string
		confidence model.FixConfidence
		ctx        Context
		prompt     Prompter
		want       bool
	}{
		{"githooks tty safe", model.Safe, Context{Mode: model.ModeGitHooks, TTY: true}, nil, true},
		{"githooks tty likely default yes", model.Likely, Context{Mode: model.ModeGitHooks, TTY: true}, nil, true},
		{"githooks tty uncertain default no", model.Uncertain, Context{Mode: model.ModeGitHooks, TTY: true}, nil, false},
		{"githooks tty manual never", model.Manual, Context{Mode: model.ModeGitHooks, TTY: true}, nil, false},
		{"githooks non-tty safe", model.Safe, Context{Mode: model.ModeGitHooks, TTY: false}, nil, true},
		{"githooks non-tty likely", model.Likely, Context{Mode: model.ModeGitHooks, TTY: false}, nil, false},
		{"githooks non-tty uncertain", model.Uncertain, Context{Mode: model.ModeGitHooks, TTY: false}, nil, false},
		{"ci never fixes safe", model.Safe, Context{Mode: model.ModeCI}, nil, false},
		{"ci never fixes uncertain", model.Uncertain, Context{Mode: model.ModeCI}, nil, false},
		{"mcp never fixes", model.Safe, Context{Mode: model.ModeMCP}, nil, false},
		{"cli fix safe", model.Safe, Context{Mode: model.ModeCLI, FixRequested: true}, nil, true},
		{"cli fix likely", model.Likely, Context{Mode: model.ModeCLI, FixRequested: true}, nil, true},
		{"cli fix uncertain without unsafe", model.Uncertain, Context{Mode: model.ModeCLI, FixRequested: true}, nil, false},
		{"cli fix uncertain with unsafe", model.Uncertain, Context{Mode: model.ModeCLI, FixRequested: true, Unsafe: true}, nil, true},
		{"cli no fix flag", model.Safe, Context{Mode: model.ModeCLI, FixRequested: false}, nil, false},
		{"pipeline fix safe", model.Safe, Context{Mode: model.ModePipeline, FixRequested: true}, nil, true},
		{"pipeline fix uncertain", model.Uncertain, Context{Mode: model.ModePipeline, FixRequested: true}, nil, true},
		{"pipeline no fix flag", model.Safe, Context{Mode: model.ModePipeline, FixRequested: false}, nil, false},
		{"manual never fixes anywhere", model.Manual, Context{Mode: model.ModeCLI, FixRequested: true, Unsafe: true}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldFix(tt.confidence, tt.ctx, tt.prompt)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestShouldFixInteractivePromptOverridesDefault(t *testing.T) {
	alwaysYes := func(string, bool) bool { return true }
	alwaysNo := func(string, bool) bool { return false }

	require.True(t, ShouldFix(model.Uncertain, Context{Mode: model.ModeGitHooks, TTY: true}, alwaysYes))
	require.False(t, ShouldFix(model.Likely, Context{Mode: model.ModeGitHooks, TTY: true}, alwaysNo))
}

func TestStdinPrompterDefaultsOnEOF(t *testing.T) {
	prompt := StdinPrompter(strings.NewReader(""))
	require.True(t, prompt("continue? ", true))
	require.False(t, prompt("continue? ", false))
}

func TestStdinPrompterParsesAnswer(t *testing.T) {
	prompt := StdinPrompter(strings.NewReader("y\nno\n"))
	require.True(t, prompt("q1", false))
	require.False(t, prompt("q2", true))
}
