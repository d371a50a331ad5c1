package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Exposure describes how a vault file relates to an enclosing repository.
type Exposure struct {
	IsRepo  bool
	File    string // vault file path relative to its directory
	Tracked bool
	Ignored bool
}

// Exposed reports whether the vault file could end up in a commit.
func (e *Exposure) Exposed() bool {
	return e.IsRepo && (e.Tracked || !e.Ignored)
}

func run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

// IsGitRepo checks if dir is inside a git work tree
func IsGitRepo(ctx context.Context, dir string) bool {
	out, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// IsTracked checks if a file is tracked by git
func IsTracked(ctx context.Context, dir, path string) bool {
	out, err := run(ctx, dir, "ls-files", "--", path)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(out))) > 0
}

// IsIgnored checks if a file is ignored by git. git check-ignore exits 0
// when the path is ignored.
func IsIgnored(ctx context.Context, dir, path string) bool {
	_, err := run(ctx, dir, "check-ignore", "-q", "--", path)
	return err == nil
}

// CheckVaultExposure inspects the repository around vaultPath. A missing git
// binary or a directory outside any repository yields IsRepo false.
func CheckVaultExposure(ctx context.Context, vaultPath string) (*Exposure, error) {
	abs, err := filepath.Abs(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	dir, file := filepath.Split(abs)

	exposure := &Exposure{File: file}
	if !IsGitRepo(ctx, dir) {
		return exposure, nil
	}
	exposure.IsRepo = true
	exposure.Tracked = IsTracked(ctx, dir, file)
	exposure.Ignored = IsIgnored(ctx, dir, file)
	return exposure, nil
}

// FormatExposure formats the exposure report for display. It returns an
// empty string outside a repository.
func FormatExposure(e *Exposure) string {
	if e == nil || !e.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")

	if e.Tracked {
		result.WriteString(fmt.Sprintf("   error: %s is tracked by git (run: git rm --cached %s)\n", e.File, e.File))
	} else {
		result.WriteString(fmt.Sprintf("   ok: %s is not tracked\n", e.File))
	}

	if e.Ignored {
		result.WriteString(fmt.Sprintf("   ok: %s is in .gitignore\n", e.File))
	} else {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore (add it to .gitignore)\n", e.File))
	}

	return result.String()
}
