package exporter

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
	"github.com/sleroq/keep-to-markdown/internal/infra/exportfs"
)

const manifestFileName = ".keep-export.yaml"

type manifest struct {
	RunID   string          `yaml:"run_id"`
	Started string          `yaml:"started"`
	Notes   []manifestEntry `yaml:"notes"`
}

type manifestEntry struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title,omitempty"`
	Name  string   `yaml:"name"`
	Body  string   `yaml:"body"`
	Media []string `yaml:"media,omitempty"`
}

func newManifest(runID string, started time.Time) *manifest {
	return &manifest{
		RunID:   runID,
		Started: started.UTC().Format(time.RFC3339),
		Notes:   []manifestEntry{},
	}
}

func (m *manifest) add(note keepdomain.Note, exported keepdomain.ExportedNote) {
	entry := manifestEntry{
		ID:    note.ID,
		Title: note.Title,
		Name:  exported.UniqueName,
		Body:  filepath.Base(exported.BodyPath),
	}
	for _, p := range exported.MediaFiles {
		entry.Media = append(entry.Media, filepath.Base(p))
	}
	m.Notes = append(m.Notes, entry)
}

// write replaces the manifest on disk so it always lists every note that
// reached Done, even if the run stops later.
func (m *manifest) write(path string) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return exportfs.WriteFileAtomic(path, b)
}
