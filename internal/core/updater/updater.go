// Package updater replaces the running binary with the latest GitHub release.
package updater

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/guiyumin/clipget/internal/core/version"
)

const (
	repoOwner = "guiyumin"
	repoName  = "clipget"
)

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, err
	}
	return selfupdate.NewUpdater(selfupdate.Config{Source: source})
}

// currentVersion strips the optional v prefix for comparison.
func currentVersion() string {
	return strings.TrimPrefix(version.Version, "v")
}

// Check returns the latest release and whether it is newer than this build.
func Check(ctx context.Context) (*selfupdate.Release, bool, error) {
	u, err := newUpdater()
	if err != nil {
		return nil, false, err
	}
	latest, found, err := u.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return latest, !latest.LessOrEqual(currentVersion()), nil
}

// Update installs the latest release over the running executable.
func Update(ctx context.Context, w io.Writer) error {
	latest, newer, err := Check(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("no releases found for %s/%s", repoOwner, repoName)
	}
	if !newer {
		fmt.Fprintf(w, "Already up to date (v%s)\n", currentVersion())
		return nil
	}

	fmt.Fprintf(w, "Updating from v%s to %s...\n", currentVersion(), latest.Version())

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	u, err := newUpdater()
	if err != nil {
		return err
	}
	if err := u.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	fmt.Fprintf(w, "Successfully updated to %s\n", latest.Version())
	return nil
}
