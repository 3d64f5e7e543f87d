package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinyland-inc/huskycat/pkg/model"
)

// linesFrom splits a byte stream into non-empty, trimmed lines.
func linesFrom(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// DefaultCatalog returns the built-in Tool Descriptors named in spec §1:
// Python, JavaScript/TypeScript, YAML, TOML, Terraform, Ansible, shell,
// Dockerfiles, GitLab CI, Chapel, Go, and GitHub Actions workflows. Each
// descriptor's parser encodes that tool's documented exit-code and stream
// conventions (§4.3).
func DefaultCatalog() []Descriptor {
	return []Descriptor{
		ruffDescriptor(),
		mypyDescriptor(),
		prettierDescriptor(),
		eslintDescriptor(),
		yamllintDescriptor(),
		taploDescriptor(),
		terraformFmtDescriptor(),
		ansibleLintDescriptor(),
		shellcheckDescriptor(),
		hadolintDescriptor(),
		gitlabCILintDescriptor(),
		chplcheckDescriptor(),
		golangciLintDescriptor(),
		gosecDescriptor(),
		actionlintDescriptor(),
	}
}

// --- Python -----------------------------------------------------------

func ruffDescriptor() Descriptor {
	return Descriptor{
		Name:          "ruff",
		Executable:    "ruff",
		Extensions:    extSet(".py", ".pyi"),
		FixConfidence: model.Safe,
		Timeout:       DefaultTimeout,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"check", "--output-format=json"}, append(extra, file)...)
		},
		FixArgv: func(file string, extra []string) []string {
			return append([]string{"check", "--fix", "--output-format=json"}, append(extra, file)...)
		},
		Parse: parseRuffJSON,
	}
}

type ruffMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
}

func parseRuffJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	// ruff exits 0 when clean, 1 when findings exist, >1 on internal errors.
	if exitCode > 1 {
		return model.ValidationResult{Tool: tool, File: file, Errors: []string{fmt.Sprintf("ruff failed: %s", strings.TrimSpace(string(stderr)))}}
	}

	var messages []ruffMessage
	if err := json.Unmarshal(stdout, &messages); err != nil {
		if exitCode == 0 {
			return model.ValidationResult{Tool: tool, File: file}
		}
		return model.ValidationResult{Tool: tool, File: file, Errors: []string{"failed to parse ruff output"}}
	}

	result := model.ValidationResult{Tool: tool, File: file}
	for _, m := range messages {
		result.Errors = append(result.Errors, fmt.Sprintf("%s:%d:%d: %s %s", m.Filename, m.Location.Row, m.Location.Column, m.Code, m.Message))
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{Line: m.Location.Row, Column: m.Location.Column, RuleID: m.Code, Message: m.Message})
	}
	return result
}

func mypyDescriptor() Descriptor {
	return Descriptor{
		Name:          "mypy",
		Executable:    "mypy",
		Extensions:    extSet(".py", ".pyi"),
		FixConfidence: model.Manual, // type errors are never auto-fixable
		Timeout:       SlowTimeout,
		Slow:          true,
		DependsOn:     []string{"ruff"}, // run after the formatter settles syntax
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--no-error-summary", "--show-column-numbers"}, append(extra, file)...)
		},
		Parse: parseMypyText,
	}
}

func parseMypyText(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	result := model.ValidationResult{Tool: tool, File: file}
	if exitCode == 0 {
		return result
	}
	for _, line := range linesFrom(stdout) {
		if strings.Contains(line, ": error:") {
			result.Errors = append(result.Errors, line)
		} else if strings.Contains(line, ": note:") {
			result.Warnings = append(result.Warnings, line)
		}
	}
	if len(result.Errors) == 0 && exitCode != 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("mypy exited %d with no parsed errors", exitCode))
	}
	return result
}

// --- JavaScript / TypeScript -------------------------------------------

func prettierDescriptor() Descriptor {
	return Descriptor{
		Name:          "prettier",
		Executable:    "prettier",
		Extensions:    extSet(".js", ".jsx", ".ts", ".tsx", ".json", ".css", ".scss", ".md"),
		FixConfidence: model.Safe,
		Timeout:       DefaultTimeout,
		ErrStream:     "stderr",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--check"}, append(extra, file)...)
		},
		FixArgv: func(file string, extra []string) []string {
			return append([]string{"--write"}, append(extra, file)...)
		},
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			result := model.ValidationResult{Tool: tool, File: file}
			if exitCode != 0 {
				result.Errors = append(result.Errors, strings.TrimSpace(string(stderr)))
			}
			return result
		},
	}
}

func eslintDescriptor() Descriptor {
	return Descriptor{
		Name:          "eslint",
		Executable:    "eslint",
		Extensions:    extSet(".js", ".jsx", ".ts", ".tsx"),
		FixConfidence: model.Likely,
		Timeout:       DefaultTimeout,
		DependsOn:     []string{"prettier"},
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--format=json"}, append(extra, file)...)
		},
		FixArgv: func(file string, extra []string) []string {
			return append([]string{"--format=json", "--fix"}, append(extra, file)...)
		},
		Parse: parseESLintJSON,
	}
}

type eslintFileResult struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"` // 1 = warning, 2 = error
		Message  string `json:"message"`
		Line     int    `json:"line"`
		Column   int    `json:"column"`
	} `json:"messages"`
}

func parseESLintJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	var fileResults []eslintFileResult
	result := model.ValidationResult{Tool: tool, File: file}
	if err := json.Unmarshal(stdout, &fileResults); err != nil {
		if exitCode > 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("eslint failed: %s", strings.TrimSpace(string(stderr))))
		}
		return result
	}
	for _, fr := range fileResults {
		for _, m := range fr.Messages {
			text := fmt.Sprintf("%s:%d:%d: %s %s", fr.FilePath, m.Line, m.Column, m.RuleID, m.Message)
			diag := model.Diagnostic{Line: m.Line, Column: m.Column, RuleID: m.RuleID, Message: m.Message}
			if m.Severity >= 2 {
				result.Errors = append(result.Errors, text)
			} else {
				result.Warnings = append(result.Warnings, text)
			}
			result.Diagnostics = append(result.Diagnostics, diag)
		}
	}
	return result
}

// --- YAML / TOML / Terraform / Ansible / shell / Docker / GitLab CI / Chapel --

func yamllintDescriptor() Descriptor {
	return Descriptor{
		Name:          "yamllint",
		Executable:    "yamllint",
		Extensions:    extSet(".yml", ".yaml"),
		FixConfidence: model.Manual,
		Timeout:       DefaultTimeout,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--format=parsable"}, append(extra, file)...)
		},
		Parse: parseParsableLines("yamllint"),
	}
}

func taploDescriptor() Descriptor {
	return Descriptor{
		Name:          "taplo",
		Executable:    "taplo",
		Extensions:    extSet(".toml"),
		FixConfidence: model.Safe,
		Timeout:       DefaultTimeout,
		ErrStream:     "stderr",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"fmt", "--check"}, append(extra, file)...)
		},
		FixArgv: func(file string, extra []string) []string {
			return append([]string{"fmt"}, append(extra, file)...)
		},
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			result := model.ValidationResult{Tool: tool, File: file}
			if exitCode != 0 {
				result.Errors = append(result.Errors, strings.TrimSpace(string(stderr)))
			}
			return result
		},
	}
}

func terraformFmtDescriptor() Descriptor {
	return Descriptor{
		Name:          "terraform-fmt",
		Executable:    "terraform",
		Extensions:    extSet(".tf", ".tfvars"),
		FixConfidence: model.Safe,
		Timeout:       DefaultTimeout,
		ErrStream:     "stderr",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"fmt", "-check", "-diff"}, append(extra, file)...)
		},
		FixArgv: func(file string, extra []string) []string {
			return append([]string{"fmt"}, append(extra, file)...)
		},
		Parse: func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
			result := model.ValidationResult{Tool: tool, File: file}
			if exitCode != 0 {
				result.Errors = append(result.Errors, strings.TrimSpace(string(stdout))+strings.TrimSpace(string(stderr)))
			}
			return result
		},
	}
}

// ansibleLintDescriptor matches on path content, not extension, since
// Ansible YAML shares the .yml/.yaml extension with plain YAML (§4.3:
// predicate descriptors must not also claim bare extensions).
func ansibleLintDescriptor() Descriptor {
	return Descriptor{
		Name:          "ansible-lint",
		Executable:    "ansible-lint",
		Predicate:     isAnsiblePath,
		FixConfidence: model.Uncertain,
		Timeout:       SlowTimeout,
		Slow:          true,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--parseable"}, append(extra, file)...)
		},
		FixArgv: func(file string, extra []string) []string {
			return append([]string{"--parseable", "--fix"}, append(extra, file)...)
		},
		Parse: parseParsableLines("ansible-lint"),
	}
}

func isAnsiblePath(path string) bool {
	lower := strings.ToLower(path)
	if !(strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")) {
		return false
	}
	return strings.Contains(lower, "/playbooks/") || strings.Contains(lower, "/roles/") ||
		strings.Contains(lower, "playbook") || strings.Contains(lower, "/tasks/")
}

func shellcheckDescriptor() Descriptor {
	return Descriptor{
		Name:          "shellcheck",
		Executable:    "shellcheck",
		Extensions:    extSet(".sh", ".bash"),
		FixConfidence: model.Uncertain,
		Timeout:       DefaultTimeout,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--format=json"}, append(extra, file)...)
		},
		Parse: parseShellcheckJSON,
	}
}

type shellcheckComment struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"` // "error", "warning", "info", "style"
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func parseShellcheckJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	result := model.ValidationResult{Tool: tool, File: file}
	var comments []shellcheckComment
	if err := json.Unmarshal(stdout, &comments); err != nil {
		if exitCode > 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("shellcheck failed: %s", strings.TrimSpace(string(stderr))))
		}
		return result
	}
	for _, c := range comments {
		text := fmt.Sprintf("%s:%d:%d: SC%d %s", c.File, c.Line, c.Column, c.Code, c.Message)
		diag := model.Diagnostic{Line: c.Line, Column: c.Column, RuleID: fmt.Sprintf("SC%d", c.Code), Message: c.Message}
		if c.Level == "error" {
			result.Errors = append(result.Errors, text)
		} else {
			result.Warnings = append(result.Warnings, text)
		}
		result.Diagnostics = append(result.Diagnostics, diag)
	}
	return result
}

func hadolintDescriptor() Descriptor {
	return Descriptor{
		Name:          "hadolint",
		Executable:    "hadolint",
		Predicate:     isDockerfilePath,
		FixConfidence: model.Manual,
		Timeout:       DefaultTimeout,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"--format=json"}, append(extra, file)...)
		},
		Parse: parseHadolintJSON,
	}
}

func isDockerfilePath(path string) bool {
	base := strings.ToLower(path)
	idx := strings.LastIndex(base, "/")
	if idx >= 0 {
		base = base[idx+1:]
	}
	return base == "dockerfile" || strings.HasPrefix(base, "dockerfile.") || strings.HasSuffix(base, ".dockerfile")
}

type hadolintFinding struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseHadolintJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	result := model.ValidationResult{Tool: tool, File: file}
	var findings []hadolintFinding
	if err := json.Unmarshal(stdout, &findings); err != nil {
		if exitCode > 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("hadolint failed: %s", strings.TrimSpace(string(stderr))))
		}
		return result
	}
	for _, f := range findings {
		text := fmt.Sprintf("%s:%d:%d: [%s] %s", file, f.Line, f.Column, f.Code, f.Message)
		diag := model.Diagnostic{Line: f.Line, Column: f.Column, RuleID: f.Code, Message: f.Message}
		if f.Level == "error" {
			result.Errors = append(result.Errors, text)
		} else {
			result.Warnings = append(result.Warnings, text)
		}
		result.Diagnostics = append(result.Diagnostics, diag)
	}
	return result
}

// gitlabCILintDescriptor matches GitLab CI's conventional file names rather
// than a bare extension, since `.gitlab-ci.yml` and included fragments
// share the YAML extension.
func gitlabCILintDescriptor() Descriptor {
	return Descriptor{
		Name:          "gitlab-ci-lint",
		Executable:    "gitlab-ci-lint",
		Predicate:     isGitLabCIPath,
		FixConfidence: model.Manual,
		Timeout:       SlowTimeout,
		Slow:          true, // reaches out to a GitLab instance or local schema bundle
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append(extra, file)
		},
		Parse: parseParsableLines("gitlab-ci-lint"),
	}
}

func isGitLabCIPath(path string) bool {
	lower := strings.ToLower(path)
	base := lower
	if idx := strings.LastIndex(lower, "/"); idx >= 0 {
		base = lower[idx+1:]
	}
	return base == ".gitlab-ci.yml" || strings.Contains(lower, "/.gitlab/ci/") || strings.Contains(lower, "gitlab-ci")
}

func chplcheckDescriptor() Descriptor {
	return Descriptor{
		Name:          "chplcheck",
		Executable:    "chplcheck",
		Extensions:    extSet(".chpl"),
		FixConfidence: model.Manual,
		Timeout:       SlowTimeout,
		Slow:          true,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append(extra, file)
		},
		Parse: parseParsableLines("chplcheck"),
	}
}

// --- Go / GitHub Actions -----------------------------------------------

// golangciLintDescriptor covers huskycat's own implementation language:
// golangci-lint aggregates dozens of Go linters behind one JSON contract.
// Lint findings are never auto-applied, so there is no FixArgv.
func golangciLintDescriptor() Descriptor {
	return Descriptor{
		Name:          "golangci-lint",
		Executable:    "golangci-lint",
		Extensions:    extSet(".go"),
		FixConfidence: model.Manual,
		Timeout:       SlowTimeout,
		Slow:          true,
		ErrStream:     "stderr",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"run", "--output.json.path", "stdout"}, append(extra, file)...)
		},
		Parse: parseGolangciLintJSON,
	}
}

type golangciLintIssue struct {
	FromLinter string `json:"FromLinter"`
	Text       string `json:"Text"`
	Severity   string `json:"Severity"`
	Pos        struct {
		Filename string `json:"Filename"`
		Line     int    `json:"Line"`
		Column   int    `json:"Column"`
	} `json:"Pos"`
}

type golangciLintReport struct {
	Issues []golangciLintIssue `json:"Issues"`
}

func parseGolangciLintJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	result := model.ValidationResult{Tool: tool, File: file}
	if exitCode == 0 {
		return result
	}

	var report golangciLintReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("golangci-lint failed: %s", strings.TrimSpace(string(stderr))))
		return result
	}
	for _, issue := range report.Issues {
		text := fmt.Sprintf("%s:%d:%d: %s: %s", issue.Pos.Filename, issue.Pos.Line, issue.Pos.Column, issue.FromLinter, issue.Text)
		diag := model.Diagnostic{Line: issue.Pos.Line, Column: issue.Pos.Column, RuleID: issue.FromLinter, Message: issue.Text}
		if issue.Severity == "warning" {
			result.Warnings = append(result.Warnings, text)
		} else {
			result.Errors = append(result.Errors, text)
		}
		result.Diagnostics = append(result.Diagnostics, diag)
	}
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("golangci-lint exited %d with no parsed issues", exitCode))
	}
	return result
}

// gosecDescriptor covers Go source's security scanning. gosec findings are
// never auto-fixable: a "disable G104" suggestion still needs a human to
// decide whether the check is actually safe to skip.
func gosecDescriptor() Descriptor {
	return Descriptor{
		Name:          "gosec",
		Executable:    "gosec",
		Extensions:    extSet(".go"),
		FixConfidence: model.Uncertain,
		Timeout:       SlowTimeout,
		Slow:          true,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"-fmt=json", "-quiet"}, append(extra, file)...)
		},
		Parse: parseGosecJSON,
	}
}

type gosecIssue struct {
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	RuleID     string `json:"rule_id"`
	Details    string `json:"details"`
	File       string `json:"file"`
	Line       string `json:"line"`
	Column     string `json:"column"`
}

type gosecReport struct {
	Issues []gosecIssue `json:"Issues"`
}

func parseGosecJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	result := model.ValidationResult{Tool: tool, File: file}
	if exitCode == 0 {
		return result
	}

	var report gosecReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("gosec failed: %s", strings.TrimSpace(string(stderr))))
		return result
	}
	for _, issue := range report.Issues {
		text := fmt.Sprintf("%s:%s:%s: %s (%s, confidence %s)", issue.File, issue.Line, issue.Column, issue.Details, issue.RuleID, issue.Confidence)
		diag := model.Diagnostic{RuleID: issue.RuleID, Message: issue.Details}
		if issue.Severity == "LOW" {
			result.Warnings = append(result.Warnings, text)
		} else {
			result.Errors = append(result.Errors, text)
		}
		result.Diagnostics = append(result.Diagnostics, diag)
	}
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("gosec exited %d with no parsed issues", exitCode))
	}
	return result
}

// actionlintDescriptor matches GitHub Actions workflow files by path rather
// than bare extension, since plain YAML shares .yml/.yaml with workflows.
func actionlintDescriptor() Descriptor {
	return Descriptor{
		Name:          "actionlint",
		Executable:    "actionlint",
		Predicate:     isWorkflowPath,
		FixConfidence: model.Manual,
		Timeout:       DefaultTimeout,
		ErrStream:     "stdout",
		CheckArgv: func(file string, extra []string) []string {
			return append([]string{"-format", "{{json .}}"}, append(extra, file)...)
		},
		Parse: parseActionlintJSON,
	}
}

func isWorkflowPath(path string) bool {
	lower := strings.ToLower(path)
	if !(strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")) {
		return false
	}
	return strings.Contains(lower, "/.github/workflows/")
}

type actionlintError struct {
	Message  string `json:"message"`
	Filepath string `json:"filepath"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Kind     string `json:"kind"`
}

func parseActionlintJSON(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
	result := model.ValidationResult{Tool: tool, File: file}
	if exitCode == 0 {
		return result
	}

	var errs []actionlintError
	if err := json.Unmarshal(stdout, &errs); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("actionlint failed: %s", strings.TrimSpace(string(stderr))))
		return result
	}
	for _, e := range errs {
		text := fmt.Sprintf("%s:%d:%d: [%s] %s", e.Filepath, e.Line, e.Column, e.Kind, e.Message)
		result.Errors = append(result.Errors, text)
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{Line: e.Line, Column: e.Column, RuleID: e.Kind, Message: e.Message})
	}
	if len(result.Errors) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("actionlint exited %d with no parsed errors", exitCode))
	}
	return result
}

// parseParsableLines handles the common "file:line:col: message" or
// "file:line: message" convention shared by yamllint --format=parsable,
// ansible-lint --parseable, and similar linters.
func parseParsableLines(toolName string) ParseFunc {
	return func(tool, file string, exitCode int, stdout, stderr []byte) model.ValidationResult {
		result := model.ValidationResult{Tool: tool, File: file}
		if exitCode == 0 {
			return result
		}
		for _, line := range linesFrom(stdout) {
			if strings.Contains(line, "[warning]") {
				result.Warnings = append(result.Warnings, line)
			} else {
				result.Errors = append(result.Errors, line)
			}
		}
		if len(result.Errors) == 0 && len(result.Warnings) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s exited %d: %s", toolName, exitCode, strings.TrimSpace(string(stderr))))
		}
		return result
	}
}

func extSet(exts ...string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[e] = true
	}
	return set
}
