// Package publish pushes assembled outputs into the static-content git
// repository consumed by the app backend.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// AuthURL embeds an access token into an https repository URL. URLs that
// already carry credentials, or non-GitHub URLs, pass through unchanged.
func AuthURL(repoURL, token string) string {
	if token == "" || !strings.Contains(repoURL, "github.com") || strings.Contains(repoURL, "@") {
		return repoURL
	}
	rest := strings.TrimPrefix(repoURL, "https://")
	if rest == repoURL {
		return repoURL
	}
	return "https://" + token + "@" + rest
}

// git runs one git subcommand inside dir.
func git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// initRepo clones the branch into dir, or fast-forwards an existing
// checkout.
func initRepo(ctx context.Context, dir, repoURL, token, branch string) error {
	authURL := AuthURL(repoURL, token)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return fmt.Errorf("failed to create checkout parent: %w", err)
		}
		if err := git(ctx, "", "clone", "-b", branch, authURL, dir); err != nil {
			return err
		}
		return nil
	}

	if err := git(ctx, dir, "fetch"); err != nil {
		return err
	}
	if err := git(ctx, dir, "checkout", branch); err != nil {
		return err
	}
	return git(ctx, dir, "pull")
}

// hasStagedChanges reports whether the index differs from HEAD.
func hasStagedChanges(ctx context.Context, dir string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--quiet")
	cmd.Dir = dir
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff failed: %w", err)
}
