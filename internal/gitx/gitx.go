// Package gitx reads prior manifest revisions and changed content paths
// from the git history that owns the manifest.
package gitx

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Source supplies the previous manifest revision and the content paths that
// differ between that revision and the working tree.
type Source interface {
	// FileAt returns the bytes of relPath as of rev. ok is false when the
	// revision or the file does not exist there, which callers treat as
	// "no prior manifest".
	FileAt(rev, relPath string) (data []byte, ok bool, err error)

	// ChangedPaths returns repo-relative paths under relDir that differ
	// between rev and the working tree, including untracked files.
	ChangedPaths(rev, relDir string) ([]string, error)
}

// Repo implements Source using actual git commands.
type Repo struct {
	root string
}

// Discover finds the git repository root by walking up from start looking
// for a .git entry.
func Discover(start string) (*Repo, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("gitx: resolve start: %w", err)
	}

	current := abs
	for {
		gitDir := filepath.Join(current, ".git")
		if info, statErr := os.Stat(gitDir); statErr == nil {
			// .git can be a directory or a file (worktrees/submodules).
			if info.IsDir() || info.Mode().IsRegular() {
				return &Repo{root: current}, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, fmt.Errorf("gitx: %s is not inside a git repository", start)
		}
		current = parent
	}
}

// Root returns the repository root.
func (r *Repo) Root() string {
	return r.root
}

// Rel converts an absolute path into a repo-relative slash path.
func (r *Repo) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", fmt.Errorf("gitx: relativize %s: %w", abs, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("gitx: %s is outside the repository", abs)
	}
	return filepath.ToSlash(rel), nil
}

// FileAt runs `git show rev:relPath`. A failing git exit is reported as an
// absent file: git uses the same exit code for unknown revisions and for
// paths not present at the revision, and both mean "no prior manifest" here.
func (r *Repo) FileAt(rev, relPath string) ([]byte, bool, error) {
	cmd := exec.Command("git", "-C", r.root, "show", rev+":"+filepath.ToSlash(relPath))
	out, err := cmd.Output()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("gitx: git show: %w", err)
	}
	return out, true, nil
}

// ChangedPaths merges `git diff --name-only rev -- relDir` with untracked
// files under relDir.
func (r *Repo) ChangedPaths(rev, relDir string) ([]string, error) {
	diffed, err := r.gitLines("diff", "--name-only", rev, "--", relDir)
	if err != nil {
		return nil, err
	}
	untracked, err := r.gitLines("ls-files", "--others", "--exclude-standard", "--", relDir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(diffed)+len(untracked))
	var out []string
	for _, p := range append(diffed, untracked...) {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repo) gitLines(args ...string) ([]string, error) {
	cmd := exec.Command("git", append([]string{"-C", r.root}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gitx: git %s: %w", args[0], err)
	}
	return strings.Split(strings.TrimSpace(string(out)), "\n"), nil
}

// Fake implements Source with predetermined values for testing.
type Fake struct {
	Data    map[string][]byte // rev:relPath -> bytes
	Changed []string
	Err     error
}

// FileAt returns the predetermined bytes for rev:relPath.
func (f *Fake) FileAt(rev, relPath string) ([]byte, bool, error) {
	if f.Err != nil {
		return nil, false, f.Err
	}
	data, ok := f.Data[rev+":"+relPath]
	return data, ok, nil
}

// ChangedPaths returns the predetermined changed paths.
func (f *Fake) ChangedPaths(rev, relDir string) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Changed, nil
}
