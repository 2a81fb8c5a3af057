// Package workspace materializes isolated working copies of scenario
// fixtures. Each run gets a uniquely-named directory under a shared
// results/workspaces root; directories are never shared or reused.
package workspace

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/keiko-bench/keiko/internal/scenario"
)

// fixtureCandidates is the ordered list of subdirectory names probed under a
// scenario directory. First existing one wins.
var fixtureCandidates = []string{"fixture", "fixtures", "workspace", "starter"}

// seq is a process-lifetime sequence number folded into workspace directory
// names so that concurrent runs can never collide on a path.
var seq atomic.Uint64

// Paths holds the directories of one provisioned workspace.
type Paths struct {
	WorkspaceDir string
	FixtureDir   string
}

// Provisioner creates run workspaces under a results root.
type Provisioner struct {
	resultsDir string
	logger     *slog.Logger
}

// NewProvisioner returns a provisioner rooted at resultsDir (workspaces land
// in resultsDir/workspaces, created lazily).
func NewProvisioner(resultsDir string, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{resultsDir: resultsDir, logger: logger}
}

// Prepare locates the scenario's fixture tree and copies it into a fresh,
// uniquely-named workspace directory. A missing fixture or a copy failure
// returns (nil, nil) after logging a warning: provisioning is fail-soft so a
// bad fixture never crashes batch execution. The caller decides how to treat
// an absent result.
func (p *Provisioner) Prepare(s *scenario.Scenario) (*Paths, error) {
	fixtureDir := ""
	for _, name := range fixtureCandidates {
		candidate := filepath.Join(s.Dir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			fixtureDir = candidate
			break
		}
	}
	if fixtureDir == "" {
		p.logger.Warn("scenario has no fixture directory",
			"suite", s.Suite, "scenario", s.Name, "tried", fixtureCandidates)
		return nil, nil
	}

	root := filepath.Join(p.resultsDir, "workspaces")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root %s: %w", root, err)
	}

	name := fmt.Sprintf("%s-%s-%06d", s.Suite, s.Name, seq.Add(1))
	workspaceDir := filepath.Join(root, name)
	if err := os.Mkdir(workspaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", workspaceDir, err)
	}

	if err := copyTree(fixtureDir, workspaceDir); err != nil {
		p.logger.Warn("fixture copy failed, treating workspace as absent",
			"suite", s.Suite, "scenario", s.Name, "error", err)
		if rmErr := os.RemoveAll(workspaceDir); rmErr != nil {
			p.logger.Warn("failed to remove partial workspace", "dir", workspaceDir, "error", rmErr)
		}
		return nil, nil
	}

	return &Paths{WorkspaceDir: workspaceDir, FixtureDir: fixtureDir}, nil
}

// copyTree recursively copies src into dst, preserving file modes. Symlinks
// in fixtures are not followed.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			if err := os.Mkdir(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(srcPath, dstPath, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			// sockets, devices, symlinks: skip rather than fail the fixture
		}
	}

	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
