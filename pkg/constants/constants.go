package constants

// CLIName is the prefix used in user-facing output to refer to the binary.
const CLIName = "huskycat"

// EnvPrefix is the fixed prefix for every huskycat environment variable.
const EnvPrefix = "HUSKYCAT"

// DefaultStateDirName is the directory created under the user's home
// directory for run records, PID tracking, and extracted bundled tools.
const DefaultStateDirName = ".huskycat"

// SupportedModes lists the invocation modes the dispatcher recognizes,
// in the order they're presented in --help output.
var SupportedModes = []string{"git-hooks", "ci", "cli", "pipeline", "mcp"}

// KnownTools lists the validators huskycat ships descriptors for, in
// catalog order.
var KnownTools = []string{
	"ruff",
	"mypy",
	"prettier",
	"eslint",
	"yamllint",
	"taplo",
	"terraform-fmt",
	"ansible-lint",
	"shellcheck",
	"hadolint",
	"gitlab-ci-lint",
	"chplcheck",
	"golangci-lint",
	"gosec",
	"actionlint",
}
