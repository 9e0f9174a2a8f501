package sync

import (
	"fmt"
	"log/slog"
	"strings"
	stdsync "sync"

	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/gitx"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/store"
)

// RunnerConfig wires a Runner's collaborators.
type RunnerConfig struct {
	Store   store.Store
	Content content.Provider
	Source  gitx.Source

	// ManifestPath is the filesystem path of the current manifest.
	ManifestPath string
	// ManifestRel and ContentRel locate the manifest and the content
	// directory relative to the git repository root.
	ManifestRel string
	ContentRel  string

	Logger *slog.Logger

	// Notify, if non-nil, is called with the report of every completed run.
	Notify func(*Report)
}

// Runner orchestrates reconciliation runs. Runs are serialized: the store is
// a shared external resource and mutation ordering must be preserved, so
// there is never more than one run in flight.
type Runner struct {
	mu  stdsync.Mutex
	cfg RunnerConfig

	last *Report

	// Previous state for watch-mode reconciles, where the baseline is the
	// last snapshot this process applied rather than a git revision.
	prevSnap *manifest.Snapshot
	prevSums map[string]string
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{cfg: cfg}
}

// Rebuild replays the entire current manifest: every entry is upserted and
// linked. Nothing is removed.
func (r *Runner) Rebuild() (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := manifest.Load(r.cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	r.cfg.Logger.Info("sync: full rebuild", slog.Int("entries", len(snap.Entries)))
	return r.run(FullPlan(snap), snap, 0)
}

// Reconcile diffs the current manifest against its content at the given git
// revision and applies only the resulting mutations.
func (r *Runner) Reconcile(base string) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := manifest.Load(r.cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	prev := manifest.Empty()
	if data, ok, err := r.cfg.Source.FileAt(base, r.cfg.ManifestRel); err != nil {
		return nil, err
	} else if ok {
		prev, err = manifest.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("sync: manifest at %s: %w", base, err)
		}
	}

	repoPaths, err := r.cfg.Source.ChangedPaths(base, r.cfg.ContentRel)
	if err != nil {
		return nil, err
	}
	changed := r.toContentPaths(repoPaths)

	c := Classify(prev.Entries, cur.Entries, changed, cur.Ordered)
	r.cfg.Logger.Info("sync: incremental reconcile",
		slog.String("base", base),
		slog.Int("removed", len(c.Removed)),
		slog.Int("added", len(c.Added)),
		slog.Int("links_modified", len(c.LinksModified)),
		slog.Int("content_only", len(c.ContentOnly)),
		slog.Int("unchanged", len(c.Unchanged)))

	return r.run(BuildPlan(c, cur), cur, len(c.Unchanged))
}

// ReconcileFromMemory diffs the current manifest against the snapshot this
// process last applied, detecting content changes by checksum. Used by the
// watcher, where no new git revision exists yet.
func (r *Runner) ReconcileFromMemory() (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := manifest.Load(r.cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	sums, err := r.contentSums()
	if err != nil {
		return nil, err
	}

	changed := make(map[string]struct{})
	for p, sum := range sums {
		if r.prevSums[p] != sum {
			changed[p] = struct{}{}
		}
	}

	prev := r.prevSnap
	if prev == nil {
		prev = manifest.Empty()
	}

	c := Classify(prev.Entries, cur.Entries, changed, cur.Ordered)
	return r.run(BuildPlan(c, cur), cur, len(c.Unchanged))
}

// SetNotify installs the completed-run callback. Call before the first run.
func (r *Runner) SetNotify(fn func(*Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Notify = fn
}

// LastReport returns the report of the most recent run, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// run applies a plan and, on success, records snap as the new in-memory
// baseline. A failed run keeps the old baseline so the next watch-mode pass
// retries the remainder.
func (r *Runner) run(plan []Op, snap *manifest.Snapshot, unchanged int) (*Report, error) {
	applier := NewApplier(r.cfg.Store, r.cfg.Content, r.cfg.Logger)
	report, err := applier.Apply(plan)
	if report != nil {
		report.Unchanged = unchanged
		r.last = report
	}
	if err != nil {
		return report, err
	}

	r.prevSnap = snap
	if sums, sumErr := r.contentSums(); sumErr == nil {
		r.prevSums = sums
	}

	if r.cfg.Notify != nil {
		r.cfg.Notify(report)
	}
	return report, nil
}

func (r *Runner) contentSums() (map[string]string, error) {
	metas, err := r.cfg.Content.List()
	if err != nil {
		return nil, err
	}
	sums := make(map[string]string, len(metas))
	for _, m := range metas {
		sums[m.Path] = m.Checksum
	}
	return sums, nil
}

// toContentPaths converts repo-relative changed paths into content-root
// relative ones, dropping anything outside the content directory.
func (r *Runner) toContentPaths(repoPaths []string) map[string]struct{} {
	prefix := r.cfg.ContentRel
	if prefix == "." {
		prefix = ""
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	out := make(map[string]struct{}, len(repoPaths))
	for _, p := range repoPaths {
		if prefix == "" {
			out[p] = struct{}{}
			continue
		}
		if strings.HasPrefix(p, prefix) {
			out[strings.TrimPrefix(p, prefix)] = struct{}{}
		}
	}
	return out
}
