// Package githooks installs and validates huskycat's git hook scripts
// (pre-commit, pre-push, commit-msg) per §6. Hooks are plain POSIX shell
// scripts, not Go binaries, so they run with zero startup dependency on
// the huskycat binary's own Go runtime being on PATH at hook time.
package githooks

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/tinyland-inc/huskycat/internal/gitutil"
)

// HookVersion is embedded into every installed script and compared
// against the running binary's version at hook time (§6).
const HookVersion = "1"

var hookNames = []string{"pre-commit", "pre-push", "commit-msg"}

// commitMessageTypePattern matches conventional-commit subjects
// (`type(scope): subject`) for the fixed type vocabulary in §6.
var commitMessageTypePattern = regexp.MustCompile(`^(feat|fix|docs|style|refactor|perf|test|chore|build|ci)(\([^)]+\))?!?: .+`)

var passthroughPrefixes = []string{"Merge ", "Revert ", "fixup!", "squash!"}

const hookTemplate = `#!/bin/sh
# installed by huskycat setup-hooks. Do not edit; re-run
# "huskycat setup-hooks --force" to regenerate.
HOOK_VERSION={{.Version}}
HUSKYCAT_BIN="{{.BinaryPath}}"

if [ -z "$HUSKYCAT_BIN" ] || [ ! -x "$HUSKYCAT_BIN" ]; then
  if command -v huskycat >/dev/null 2>&1; then
    HUSKYCAT_BIN="huskycat"
  else
    echo "huskycat: no executable found (recorded path missing and 'huskycat' not on PATH); skipping {{.HookName}} check" >&2
    exit 0
  fi
fi

if [ "${HUSKYCAT_CHECK_VERSION:-1}" != "0" ]; then
  INSTALLED_VERSION=$("$HUSKYCAT_BIN" --version 2>/dev/null | tr -d '[:space:]')
  if [ -n "$INSTALLED_VERSION" ] && [ "$INSTALLED_VERSION" != "$HOOK_VERSION" ]; then
    echo "huskycat: installed hook version ($HOOK_VERSION) differs from binary ($INSTALLED_VERSION); run 'huskycat setup-hooks --force'" >&2
  fi
fi

{{.Body}}
`

type hookTemplateData struct {
	Version    string
	BinaryPath string
	HookName   string
	Body       string
}

func bodyFor(hookName string) string {
	switch hookName {
	case "pre-commit":
		return `NONBLOCKING=$(git config --bool huskycat.nonblocking-hooks 2>/dev/null || echo true)
exec "$HUSKYCAT_BIN" validate --staged --mode git-hooks --nonblocking="$NONBLOCKING"`
	case "pre-push":
		return `exec "$HUSKYCAT_BIN" validate --staged --mode git-hooks --fast`
	case "commit-msg":
		return `exec "$HUSKYCAT_BIN" check-commit-message "$1"`
	default:
		return ""
	}
}

// Install writes pre-commit, pre-push, and commit-msg scripts into repoRoot's
// hooks directory, using binaryPath as the recorded absolute install-time
// binary path (§6 detection priority 1). If force is false and a hook
// already exists and was not installed by huskycat, Install refuses to
// overwrite it.
func Install(repoRoot, binaryPath string, force bool) error {
	hooksDir := gitutil.HooksDir(repoRoot)
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}

	tmpl, err := template.New("hook").Parse(hookTemplate)
	if err != nil {
		return fmt.Errorf("parsing hook template: %w", err)
	}

	for _, name := range hookNames {
		path := filepath.Join(hooksDir, name)

		if !force {
			if existing, err := os.ReadFile(path); err == nil {
				if !strings.Contains(string(existing), "installed by huskycat") {
					return fmt.Errorf("refusing to overwrite existing %s hook not managed by huskycat (use --force)", name)
				}
			}
		}

		var rendered strings.Builder
		data := hookTemplateData{
			Version:    HookVersion,
			BinaryPath: binaryPath,
			HookName:   name,
			Body:       bodyFor(name),
		}
		if err := tmpl.Execute(&rendered, data); err != nil {
			return fmt.Errorf("rendering %s hook: %w", name, err)
		}

		if err := os.WriteFile(path, []byte(rendered.String()), 0o755); err != nil {
			return fmt.Errorf("writing %s hook: %w", name, err)
		}
	}

	return nil
}

// CheckCommitMessage validates msg against the conventional-commit format
// required by the commit-msg hook (§6). Merge/revert/fixup/squash
// messages pass through unchanged.
func CheckCommitMessage(msg string) error {
	firstLine := msg
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		firstLine = msg[:idx]
	}

	for _, prefix := range passthroughPrefixes {
		if strings.HasPrefix(firstLine, prefix) {
			return nil
		}
	}

	if !commitMessageTypePattern.MatchString(firstLine) {
		return fmt.Errorf("commit message %q does not match required format \"type(scope): subject\"", firstLine)
	}
	return nil
}
