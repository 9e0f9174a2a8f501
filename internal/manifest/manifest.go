// Package manifest parses and validates the explanation manifest.
//
// Two document shapes are accepted:
//
//	entries:                        # path -> questions (single-link)
//	  - path: algebra/quadratic.md
//	    questions: [Q1, Q2]
//
//	questions:                      # question -> ordered paths (ordered links)
//	  Q1:
//	    - algebra/quadratic.md
//	    - algebra/discriminant.md
//
// Both normalize into the same Snapshot; Ordered records which link
// semantics the document carries.
package manifest

import (
	"fmt"
	"os"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Entry pairs one content path with the question ids that must reference it.
type Entry struct {
	Path      string
	Questions []string
}

// Snapshot is a validated, normalized manifest revision.
type Snapshot struct {
	Entries []Entry

	// Ordered is true for the question->paths shape, where a question
	// references several explanations in a defined sequence.
	Ordered bool

	// QuestionPaths retains the per-question path order for the ordered
	// shape. Nil for the entries shape. Entries alone cannot carry this:
	// they invert the relationship to path->questions.
	QuestionPaths map[string][]string
}

type document struct {
	Entries   []entryDoc          `yaml:"entries"`
	Questions map[string][]string `yaml:"questions"`
}

type entryDoc struct {
	Path      string   `yaml:"path"`
	Questions []string `yaml:"questions"`
}

func (e entryDoc) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Path, validation.Required),
		validation.Field(&e.Questions, validation.Each(validation.Required)),
	)
}

// Parse validates raw manifest bytes and normalizes them into a Snapshot.
// It never returns a partially-trusted structure: any schema violation
// fails the whole parse.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}

	if len(doc.Entries) > 0 && len(doc.Questions) > 0 {
		return nil, fmt.Errorf("manifest: document mixes entries and questions shapes")
	}

	if len(doc.Questions) > 0 {
		return normalizeOrdered(doc.Questions)
	}
	return normalizeEntries(doc.Entries)
}

// Load reads and parses the manifest file at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Empty returns the snapshot of an absent manifest: no entries, so every
// current entry classifies as added.
func Empty() *Snapshot {
	return &Snapshot{}
}

func normalizeEntries(docs []entryDoc) (*Snapshot, error) {
	seen := make(map[string]struct{}, len(docs))
	entries := make([]Entry, 0, len(docs))
	for i, d := range docs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("manifest: entry %d: %w", i, err)
		}
		if _, dup := seen[d.Path]; dup {
			return nil, fmt.Errorf("manifest: duplicate path %q", d.Path)
		}
		seen[d.Path] = struct{}{}
		entries = append(entries, Entry{Path: d.Path, Questions: append([]string(nil), d.Questions...)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return &Snapshot{Entries: entries}, nil
}

func normalizeOrdered(questions map[string][]string) (*Snapshot, error) {
	byPath := make(map[string][]string)
	retained := make(map[string][]string, len(questions))

	qids := make([]string, 0, len(questions))
	for q := range questions {
		qids = append(qids, q)
	}
	sort.Strings(qids)

	for _, q := range qids {
		if q == "" {
			return nil, fmt.Errorf("manifest: empty question id")
		}
		paths := questions[q]
		seen := make(map[string]struct{}, len(paths))
		for _, p := range paths {
			if p == "" {
				return nil, fmt.Errorf("manifest: question %q: empty path", q)
			}
			if _, dup := seen[p]; dup {
				return nil, fmt.Errorf("manifest: question %q lists %q twice", q, p)
			}
			seen[p] = struct{}{}
			byPath[p] = append(byPath[p], q)
		}
		retained[q] = append([]string(nil), paths...)
	}

	entries := make([]Entry, 0, len(byPath))
	for p, qs := range byPath {
		entries = append(entries, Entry{Path: p, Questions: qs})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return &Snapshot{Entries: entries, Ordered: true, QuestionPaths: retained}, nil
}

// Paths returns the set of content paths declared by the snapshot.
func (s *Snapshot) Paths() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Entries))
	for _, e := range s.Entries {
		out[e.Path] = struct{}{}
	}
	return out
}
