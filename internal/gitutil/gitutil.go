// Package gitutil provides the small amount of git plumbing the
// dispatcher needs: repo-root discovery and the staged-files list (§6's
// "staged" selector). Grounded directly on the teacher's pkg/cli/git.go,
// which itself shells out to the git binary rather than going through an
// API client (see DESIGN.md for why cli/go-gh/v2 was not a fit here).
package gitutil

import (
	"fmt"
	"os/exec"
	"strings"
)

// IsRepo reports whether dir is inside a git working tree.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// FindRoot returns the top-level directory of the git repository
// containing dir.
func FindRoot(dir string) (string, error) {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// StagedFiles returns the paths currently staged for commit (`git diff
// --cached --name-only`), relative to root.
func StagedFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "-C", root, "diff", "--cached", "--name-only", "--diff-filter=ACM")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing staged files: %w", err)
	}
	return splitNonEmptyLines(string(out)), nil
}

// CurrentBranch returns the repository's current branch name.
func CurrentBranch(root string) (string, error) {
	cmd := exec.Command("git", "-C", root, "branch", "--show-current")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("reading current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ConfigBool reads a boolean git config value under root, returning
// defaultValue if the key is unset.
func ConfigBool(root, key string, defaultValue bool) bool {
	cmd := exec.Command("git", "-C", root, "config", "--bool", key)
	out, err := cmd.Output()
	if err != nil {
		return defaultValue
	}
	return strings.TrimSpace(string(out)) == "true"
}

// HooksDir returns the repository's hooks directory (honoring
// core.hooksPath when configured).
func HooksDir(root string) string {
	cmd := exec.Command("git", "-C", root, "config", "core.hooksPath")
	if out, err := cmd.Output(); err == nil {
		if custom := strings.TrimSpace(string(out)); custom != "" {
			if !strings.HasPrefix(custom, "/") {
				return root + "/" + custom
			}
			return custom
		}
	}
	return root + "/.git/hooks"
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
