// Package keeptakeout serves a Google Takeout Keep export directory as a note
// store. Label changes are queued and written back into the export on Sync.
package keeptakeout

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
	"github.com/sleroq/keep-to-markdown/internal/infra/exportfs"
)

type Store struct {
	dir string

	notes      []noteFile
	labelNames []string

	pendingLabels []string
	pendingNotes  map[string][]keepdomain.Label
}

func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("takeout directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve takeout directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open takeout directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("takeout path %s is not a directory", abs)
	}
	return &Store{dir: abs, pendingNotes: map[string][]keepdomain.Label{}}, nil
}

// Sync writes queued label changes and reloads the export from disk.
func (s *Store) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		return err
	}
	notes, err := readNotes(s.dir)
	if err != nil {
		return err
	}
	labelNames, err := readLabelNames(filepath.Join(s.dir, labelsFileName))
	if err != nil {
		return err
	}
	s.notes = notes
	s.labelNames = mergeLabelNames(labelNames, notes)
	return nil
}

func (s *Store) flush() error {
	byID := make(map[string]noteFile, len(s.notes))
	for _, f := range s.notes {
		byID[f.note.ID] = f
	}
	ids := make([]string, 0, len(s.pendingNotes))
	for id := range s.pendingNotes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		f, ok := byID[id]
		if !ok {
			return fmt.Errorf("takeout note %s disappeared before sync", id)
		}
		b, err := encodeNote(f, s.pendingNotes[id])
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.path, err)
		}
		if err := exportfs.WriteFileAtomic(f.path, b); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		delete(s.pendingNotes, id)
	}

	if len(s.pendingLabels) > 0 {
		names := append(append([]string(nil), s.labelNames...), s.pendingLabels...)
		if err := exportfs.WriteFileAtomic(filepath.Join(s.dir, labelsFileName), []byte(strings.Join(names, "\n")+"\n")); err != nil {
			return fmt.Errorf("write %s: %w", labelsFileName, err)
		}
		s.labelNames = names
		s.pendingLabels = nil
	}
	return nil
}

func (s *Store) FindLabel(ctx context.Context, name string) (keepdomain.Label, bool, error) {
	for _, n := range s.labelNames {
		if strings.EqualFold(n, name) {
			return keepdomain.Label{ID: n, Name: n}, true, nil
		}
	}
	for _, n := range s.pendingLabels {
		if strings.EqualFold(n, name) {
			return keepdomain.Label{ID: n, Name: n}, true, nil
		}
	}
	return keepdomain.Label{}, false, nil
}

func (s *Store) CreateLabel(ctx context.Context, name string) (keepdomain.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return keepdomain.Label{}, fmt.Errorf("label name is required")
	}
	if l, ok, _ := s.FindLabel(ctx, name); ok {
		return keepdomain.Label{}, fmt.Errorf("label %q already exists", l.Name)
	}
	s.pendingLabels = append(s.pendingLabels, name)
	return keepdomain.Label{ID: name, Name: name}, nil
}

// Find returns the non-trashed notes carrying any of labels, ordered by file name.
func (s *Store) Find(ctx context.Context, labels ...keepdomain.Label) ([]keepdomain.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []keepdomain.Note
	for _, f := range s.notes {
		if f.trashed {
			continue
		}
		if len(labels) > 0 && !hasAnyLabel(f.note, labels) {
			continue
		}
		out = append(out, f.note)
	}
	return out, nil
}

func (s *Store) SetLabels(ctx context.Context, noteID string, labels []keepdomain.Label) error {
	for _, f := range s.notes {
		if f.note.ID == noteID {
			s.pendingNotes[noteID] = append([]keepdomain.Label(nil), labels...)
			return nil
		}
	}
	return fmt.Errorf("takeout note %s not found", noteID)
}

// MediaLink returns a file:// URL for an attachment. Takeout sometimes records
// .jpeg for files stored as .jpg (or the reverse), so a sibling with the same
// stem is accepted.
func (s *Store) MediaLink(ctx context.Context, blob keepdomain.BlobRef) (string, error) {
	rel := filepath.FromSlash(blob.ID)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("attachment %s points outside the takeout directory", blob.ID)
	}
	path := filepath.Join(s.dir, rel)
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat attachment %s: %w", blob.ID, err)
		}
		alt, ok := findSibling(path)
		if !ok {
			return "", fmt.Errorf("attachment %s not found in takeout", blob.ID)
		}
		path = alt
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

func findSibling(path string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return "", false
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".html":
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == stem {
			return filepath.Join(filepath.Dir(path), name), true
		}
	}
	return "", false
}

func hasAnyLabel(note keepdomain.Note, labels []keepdomain.Label) bool {
	for _, want := range labels {
		for _, have := range note.Labels {
			if strings.EqualFold(have.Name, want.Name) {
				return true
			}
		}
	}
	return false
}

func mergeLabelNames(listed []string, notes []noteFile) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(listed))
	for _, n := range listed {
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	for _, f := range notes {
		for _, l := range f.note.Labels {
			key := strings.ToLower(l.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, l.Name)
		}
	}
	return out
}
