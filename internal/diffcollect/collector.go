// Package diffcollect compares a run's workspace against its pristine
// fixture, producing a unified diff summary and a dependency delta.
package diffcollect

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// maxDiffFileSize caps the size of files included in the textual diff.
// Larger files are reported as changed without content.
const maxDiffFileSize = 256 * 1024

// FileChange describes one path that differs between fixture and workspace.
type FileChange struct {
	Path   string `json:"path"`
	Status string `json:"status"` // "added", "removed" or "modified"
}

// DepChange describes one dependency whose declaration changed.
type DepChange struct {
	Name string `json:"name"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// DepsDelta summarizes dependency-manifest movement between the trees.
type DepsDelta struct {
	Added   []DepChange `json:"added,omitempty"`
	Removed []DepChange `json:"removed,omitempty"`
	Changed []DepChange `json:"changed,omitempty"`
}

// Delta is the collector output attached to a run before evaluation.
type Delta struct {
	DiffSummary string       `json:"diff_summary"`
	Files       []FileChange `json:"files"`
	Deps        DepsDelta    `json:"deps"`
}

// Collector builds fixture-vs-workspace deltas.
type Collector struct{}

// NewCollector returns a diff collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Build walks both trees and produces the delta. The returned summary is a
// concatenation of unified diffs for modified text files plus one-line
// markers for additions and removals.
func (c *Collector) Build(fixtureDir, workspaceDir string) (*Delta, error) {
	fixtureFiles, err := listFiles(fixtureDir)
	if err != nil {
		return nil, fmt.Errorf("walking fixture %s: %w", fixtureDir, err)
	}
	workspaceFiles, err := listFiles(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("walking workspace %s: %w", workspaceDir, err)
	}

	delta := &Delta{}
	var summary strings.Builder

	paths := union(fixtureFiles, workspaceFiles)
	for _, rel := range paths {
		_, inFixture := fixtureFiles[rel]
		_, inWorkspace := workspaceFiles[rel]

		switch {
		case inFixture && !inWorkspace:
			delta.Files = append(delta.Files, FileChange{Path: rel, Status: "removed"})
			fmt.Fprintf(&summary, "--- removed: %s\n", rel)
		case !inFixture && inWorkspace:
			delta.Files = append(delta.Files, FileChange{Path: rel, Status: "added"})
			fmt.Fprintf(&summary, "+++ added: %s\n", rel)
		default:
			before, after, diffable, err := readPair(
				filepath.Join(fixtureDir, rel), filepath.Join(workspaceDir, rel))
			if err != nil {
				return nil, err
			}
			if before == after {
				continue
			}
			delta.Files = append(delta.Files, FileChange{Path: rel, Status: "modified"})
			if diffable {
				edits := myers.ComputeEdits(span.URIFromPath(rel), before, after)
				summary.WriteString(fmt.Sprint(gotextdiff.ToUnified("a/"+rel, "b/"+rel, before, edits)))
			} else {
				fmt.Fprintf(&summary, "~~~ modified (binary or oversized): %s\n", rel)
			}
		}
	}

	delta.DiffSummary = summary.String()
	delta.Deps = depsDelta(fixtureDir, workspaceDir)
	return delta, nil
}

func listFiles(root string) (map[string]struct{}, error) {
	files := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[rel] = struct{}{}
		return nil
	})
	return files, err
}

func union(a, b map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// readPair loads both versions of a file. diffable is false for binary
// content or files over the size cap.
func readPair(beforePath, afterPath string) (before, after string, diffable bool, err error) {
	b, err := os.ReadFile(beforePath)
	if err != nil {
		return "", "", false, err
	}
	a, err := os.ReadFile(afterPath)
	if err != nil {
		return "", "", false, err
	}

	before, after = string(b), string(a)
	if len(b) > maxDiffFileSize || len(a) > maxDiffFileSize {
		return before, after, false, nil
	}
	if !utf8.ValidString(before) || !utf8.ValidString(after) {
		return before, after, false, nil
	}
	return before, after, true, nil
}

// depsDelta inspects the dependency manifests both trees may carry.
// Manifest read/parse failures yield an empty delta: dependency tracking is
// best-effort on top of the file diff.
func depsDelta(fixtureDir, workspaceDir string) DepsDelta {
	before := readDeps(fixtureDir)
	after := readDeps(workspaceDir)

	var delta DepsDelta
	names := make(map[string]struct{}, len(before)+len(after))
	for n := range before {
		names[n] = struct{}{}
	}
	for n := range after {
		names[n] = struct{}{}
	}

	ordered := make([]string, 0, len(names))
	for n := range names {
		ordered = append(ordered, n)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		from, inBefore := before[name]
		to, inAfter := after[name]
		switch {
		case !inBefore:
			delta.Added = append(delta.Added, DepChange{Name: name, To: to})
		case !inAfter:
			delta.Removed = append(delta.Removed, DepChange{Name: name, From: from})
		case from != to:
			delta.Changed = append(delta.Changed, DepChange{Name: name, From: from, To: to})
		}
	}

	return delta
}

// readDeps merges dependencies from package.json and go.mod when present.
func readDeps(dir string) map[string]string {
	deps := make(map[string]string)

	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if err := json.Unmarshal(data, &pkg); err == nil {
			for name, version := range pkg.Dependencies {
				deps[name] = version
			}
			for name, version := range pkg.DevDependencies {
				deps["dev:"+name] = version
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
		for name, version := range parseGoModRequires(string(data)) {
			deps[name] = version
		}
	}

	return deps
}

func parseGoModRequires(content string) map[string]string {
	deps := make(map[string]string)
	inBlock := false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "require (":
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock || strings.HasPrefix(line, "require "):
			line = strings.TrimPrefix(line, "require ")
			fields := strings.Fields(line)
			if len(fields) >= 2 && !strings.HasPrefix(fields[0], "//") {
				deps[fields[0]] = fields[1]
			}
		}
	}

	return deps
}
