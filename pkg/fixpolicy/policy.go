// Package fixpolicy is the Fix Policy (C4): given an invocation mode and a
// tool's fix confidence, decide whether the scheduler should invoke a
// descriptor's fix or its check.
package fixpolicy

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/tinyland-inc/huskycat/pkg/console"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

var policyLog = logger.New("fixpolicy")

// Context carries the flags and environment the policy table (§4.4)
// branches on.
type Context struct {
	Mode         model.Mode
	TTY          bool // controlling terminal is interactive (GitHooks, CLI prompts)
	FixRequested bool // CLI/Pipeline --fix
	Unsafe       bool // CLI --unsafe: permit Uncertain fixes
}

// Prompter reads one line from the controlling terminal for an interactive
// fix-confidence prompt. EOF or any read error counts as the default answer.
type Prompter func(question string, defaultYes bool) bool

// StdinPrompter reads a yes/no answer from r, defaulting on EOF or a
// non-TTY stream per §4.4 ("EOF or non-TTY counts as the default answer").
func StdinPrompter(r io.Reader) Prompter {
	reader := bufio.NewReader(r)
	return func(question string, defaultYes bool) bool {
		fmt.Print(question)
		line, err := reader.ReadString('\n')
		if err != nil {
			return defaultYes
		}
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			return defaultYes
		}
		return line == "y" || line == "yes"
	}
}

// HuhPrompter drives the question through an interactive terminal form
// instead of reading a raw line, for callers that know they own the
// controlling terminal (CLI mode with a real TTY). Falls back to
// defaultYes if the form can't run (e.g. the terminal was detached mid-run).
func HuhPrompter() Prompter {
	return func(question string, defaultYes bool) bool {
		negative := "No"
		if defaultYes {
			negative = "No (default: yes)"
		}
		answer, err := console.ConfirmAction(question, "Yes", negative)
		if err != nil {
			policyLog.Printf("interactive prompt failed, using default: %v", err)
			return defaultYes
		}
		return answer
	}
}

// ShouldFix decides whether to run fix (true) or check (false) for a tool
// with the given confidence, under ctx. prompt is consulted only for the
// GitHooks-interactive-TTY cells that require one; pass nil to always take
// the prompt's default answer (used by non-interactive callers).
func ShouldFix(confidence model.FixConfidence, ctx Context, prompt Prompter) bool {
	if confidence == model.Manual {
		return false
	}

	switch ctx.Mode {
	case model.ModeCI, model.ModeMCP:
		// CI and MCP never mutate source files, regardless of flags.
		return false

	case model.ModeGitHooks:
		if ctx.TTY {
			return shouldFixInteractive(confidence, prompt)
		}
		// Non-TTY GitHooks: only Safe fixes run unattended.
		return confidence == model.Safe

	case model.ModeCLI:
		if !ctx.FixRequested {
			return false
		}
		if confidence == model.Uncertain {
			return ctx.Unsafe
		}
		return true

	case model.ModePipeline:
		// Pipeline --fix runs every non-Manual confidence; without --fix,
		// pipeline never mutates (it has no interactive fallback).
		return ctx.FixRequested

	default:
		policyLog.Printf("unrecognized mode %q in fix policy, defaulting to no fix", ctx.Mode)
		return false
	}
}

func shouldFixInteractive(confidence model.FixConfidence, prompt Prompter) bool {
	switch confidence {
	case model.Safe:
		return true
	case model.Likely:
		if prompt == nil {
			return true // default yes
		}
		return prompt("Apply likely-safe fix? [Y/n] ", true)
	case model.Uncertain:
		if prompt == nil {
			return false // default no
		}
		return prompt("Apply uncertain fix? [y/N] ", false)
	default:
		return false
	}
}
