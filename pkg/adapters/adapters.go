// Package adapters implements the Mode Adapters (C8): one per invocation
// mode, each deciding output format, interactivity, fail-fast behavior,
// default tool-set, color, and exit-code mapping per §4.8's table.
// Rendering leans on the teacher's pkg/console formatting helpers.
package adapters

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	"github.com/tinyland-inc/huskycat/pkg/console"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

// Exit codes (§6).
const (
	ExitPass               = 0
	ExitToolError          = 1
	ExitConfigurationError = 2
	ExitToolUnavailable    = 3
)

// Adapter is the uniform interface every mode implements (§4.8).
type Adapter interface {
	Mode() model.Mode
	// FailFast reports whether the scheduler should cancel outstanding
	// work on first tool error.
	FailFast() bool
	// ShowProgress reports whether the Progress Display should be
	// attached, given whether the invocation is interactive (the
	// dispatcher passes Request.TTY, which validate takes from stdout).
	ShowProgress(tty bool) bool
	// Interactive reports whether the fix-policy prompt may be shown.
	Interactive(tty bool) bool
	// Color reports whether output should be colorized.
	Color(tty bool) bool
	// FastDefault reports whether fast mode (skip slow tools) is the
	// mode's default when the user didn't pass --fast explicitly.
	FastDefault() bool
	// Render writes the final formatted output for results to w.
	Render(w io.Writer, results []model.ValidationResult) error
	// ExitCode maps the outcome to a process exit code.
	ExitCode(results []model.ValidationResult, toolUnavailable bool) int
}

// ForMode returns the Adapter for mode.
func ForMode(mode model.Mode) (Adapter, error) {
	switch mode {
	case model.ModeGitHooks:
		return GitHooksAdapter{}, nil
	case model.ModeCI:
		return CIAdapter{}, nil
	case model.ModeCLI:
		return CLIAdapter{}, nil
	case model.ModePipeline:
		return PipelineAdapter{}, nil
	case model.ModeMCP:
		return MCPAdapter{}, nil
	default:
		return nil, fmt.Errorf("configuration error: unknown mode %q", mode)
	}
}

// exitCodeForResults applies the common overall-pass/error mapping shared
// by every adapter (§6): 0 on pass, 1 on any tool-reported error, 3 when
// strict and a tool was unavailable.
func exitCodeForResults(results []model.ValidationResult, toolUnavailable, strict bool) int {
	if toolUnavailable && strict {
		return ExitToolUnavailable
	}
	for _, r := range results {
		if !r.Success {
			return ExitToolError
		}
	}
	return ExitPass
}

func groupByFile(results []model.ValidationResult) ([]string, map[string][]model.ValidationResult) {
	grouped := make(map[string][]model.ValidationResult)
	for _, r := range results {
		grouped[r.File] = append(grouped[r.File], r)
	}
	files := make([]string, 0, len(grouped))
	for f := range grouped {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, grouped
}

// --- GitHooks -----------------------------------------------------------

// GitHooksAdapter renders minimal text: silent on success, concise on
// failure (§4.8).
type GitHooksAdapter struct{}

func (GitHooksAdapter) Mode() model.Mode           { return model.ModeGitHooks }
func (GitHooksAdapter) FailFast() bool             { return true }
func (GitHooksAdapter) ShowProgress(tty bool) bool { return tty }
func (GitHooksAdapter) Interactive(tty bool) bool  { return tty }
func (GitHooksAdapter) Color(tty bool) bool        { return tty }
func (GitHooksAdapter) FastDefault() bool          { return true }

func (GitHooksAdapter) Render(w io.Writer, results []model.ValidationResult) error {
	var failing []model.ValidationResult
	for _, r := range results {
		if !r.Success {
			failing = append(failing, r)
		}
	}
	if len(failing) == 0 {
		return nil // silent on success
	}

	files, grouped := groupByFile(failing)
	for _, file := range files {
		fmt.Fprintln(w, console.FormatErrorMessage(file))
		for _, r := range grouped[file] {
			for _, e := range r.Errors {
				fmt.Fprintf(w, "  [%s] %s\n", r.Tool, e)
			}
		}
	}
	return nil
}

func (GitHooksAdapter) ExitCode(results []model.ValidationResult, toolUnavailable bool) int {
	return exitCodeForResults(results, toolUnavailable, false)
}

// --- CI -------------------------------------------------------------------

// CIAdapter renders a structured, machine-readable JSON report (§4.8).
type CIAdapter struct{}

func (CIAdapter) Mode() model.Mode       { return model.ModeCI }
func (CIAdapter) FailFast() bool         { return false }
func (CIAdapter) ShowProgress(bool) bool { return false }
func (CIAdapter) Interactive(bool) bool  { return false }
func (CIAdapter) Color(bool) bool        { return false }
func (CIAdapter) FastDefault() bool      { return false }

type ciReport struct {
	OverallPass bool                     `json:"overall_pass"`
	Results     []model.ValidationResult `json:"results"`
}

func (CIAdapter) Render(w io.Writer, results []model.ValidationResult) error {
	overallPass := true
	for _, r := range results {
		if !r.Success {
			overallPass = false
			break
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ciReport{OverallPass: overallPass, Results: results})
}

func (CIAdapter) ExitCode(results []model.ValidationResult, toolUnavailable bool) int {
	return exitCodeForResults(results, toolUnavailable, false)
}

// JUnitReport renders results as a JUnit-compatible XML document, the
// alternative structured format CI systems commonly ingest (§4.8).
func JUnitReport(w io.Writer, results []model.ValidationResult) error {
	type junitFailure struct {
		Message string `xml:",chardata"`
	}
	type junitCase struct {
		XMLName   xml.Name       `xml:"testcase"`
		ClassName string         `xml:"classname,attr"`
		Name      string         `xml:"name,attr"`
		Failures  []junitFailure `xml:"failure,omitempty"`
	}
	type junitSuite struct {
		XMLName xml.Name    `xml:"testsuite"`
		Name    string      `xml:"name,attr"`
		Tests   int         `xml:"tests,attr"`
		Failed  int         `xml:"failures,attr"`
		Cases   []junitCase `xml:"testcase"`
	}

	suite := junitSuite{Name: "huskycat"}
	for _, r := range results {
		c := junitCase{ClassName: r.Tool, Name: r.File}
		if !r.Success {
			suite.Failed++
			for _, e := range r.Errors {
				c.Failures = append(c.Failures, junitFailure{Message: e})
			}
		}
		suite.Tests++
		suite.Cases = append(suite.Cases, c)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return enc.Encode(suite)
}

// --- CLI --------------------------------------------------------------

// CLIAdapter renders human-readable, colorized output grouped by file
// (§4.8).
type CLIAdapter struct{}

func (CLIAdapter) Mode() model.Mode           { return model.ModeCLI }
func (CLIAdapter) FailFast() bool             { return false }
func (CLIAdapter) ShowProgress(tty bool) bool { return tty }
func (CLIAdapter) Interactive(tty bool) bool  { return tty }
func (CLIAdapter) Color(tty bool) bool        { return tty }
func (CLIAdapter) FastDefault() bool          { return false }

func (CLIAdapter) Render(w io.Writer, results []model.ValidationResult) error {
	files, grouped := groupByFile(results)

	var errorCount, warningCount int
	for _, r := range results {
		errorCount += len(r.Errors)
		warningCount += len(r.Warnings)
	}

	for _, file := range files {
		fmt.Fprintln(w, console.FormatLocationMessage(file))
		for _, r := range grouped[file] {
			for _, e := range r.Errors {
				fmt.Fprintln(w, console.FormatError(console.CompilerError{
					Position: console.ErrorPosition{File: file},
					Type:     "error",
					Message:  fmt.Sprintf("[%s] %s", r.Tool, e),
				}))
			}
			for _, wmsg := range r.Warnings {
				fmt.Fprintln(w, console.FormatWarningMessage(fmt.Sprintf("[%s] %s", r.Tool, wmsg)))
			}
		}
	}

	if errorCount == 0 {
		fmt.Fprintln(w, console.FormatSuccessMessage("all validators passed"))
	} else {
		fmt.Fprintln(w, console.FormatCountMessage(fmt.Sprintf("%d error(s), %d warning(s)", errorCount, warningCount)))
	}
	return nil
}

func (CLIAdapter) ExitCode(results []model.ValidationResult, toolUnavailable bool) int {
	return exitCodeForResults(results, toolUnavailable, false)
}

// --- Pipeline -----------------------------------------------------------

// PipelineAdapter renders line-oriented JSON, one ValidationResult per
// line (§4.8), suited to being piped into another tool.
type PipelineAdapter struct{}

func (PipelineAdapter) Mode() model.Mode       { return model.ModePipeline }
func (PipelineAdapter) FailFast() bool         { return false }
func (PipelineAdapter) ShowProgress(bool) bool { return false }
func (PipelineAdapter) Interactive(bool) bool  { return false }
func (PipelineAdapter) Color(bool) bool        { return false }
func (PipelineAdapter) FastDefault() bool      { return false }

func (PipelineAdapter) Render(w io.Writer, results []model.ValidationResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func (PipelineAdapter) ExitCode(results []model.ValidationResult, toolUnavailable bool) int {
	return exitCodeForResults(results, toolUnavailable, false)
}

// --- MCP ------------------------------------------------------------------

// MCPAdapter's Render is not used on the JSON-RPC request/response path
// (the mcpserver package frames results directly); it implements the
// uniform interface for completeness and as a fallback renderer for
// non-request contexts (e.g. startup diagnostics).
type MCPAdapter struct{}

func (MCPAdapter) Mode() model.Mode       { return model.ModeMCP }
func (MCPAdapter) FailFast() bool         { return false } // per request, not per run
func (MCPAdapter) ShowProgress(bool) bool { return false }
func (MCPAdapter) Interactive(bool) bool  { return false }
func (MCPAdapter) Color(bool) bool        { return false }
func (MCPAdapter) FastDefault() bool      { return false }

func (MCPAdapter) Render(w io.Writer, results []model.ValidationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func (MCPAdapter) ExitCode(results []model.ValidationResult, toolUnavailable bool) int {
	return exitCodeForResults(results, toolUnavailable, true)
}
