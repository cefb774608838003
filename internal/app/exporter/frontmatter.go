package exporter

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

type noteFrontmatter struct {
	Title    string   `yaml:"title,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Created  string   `yaml:"created,omitempty"`
	Updated  string   `yaml:"updated,omitempty"`
	Pinned   bool     `yaml:"pinned,omitempty"`
	Archived bool     `yaml:"archived,omitempty"`
	Color    string   `yaml:"color,omitempty"`
}

func renderFrontmatter(note keepdomain.Note) (string, error) {
	fm := noteFrontmatter{
		Title:    note.Title,
		Created:  formatDateValue(note.Created),
		Updated:  formatDateValue(note.Updated),
		Pinned:   note.Pinned,
		Archived: note.Archived,
	}
	if note.Color != "" && note.Color != "DEFAULT" {
		fm.Color = note.Color
	}
	seen := map[string]struct{}{}
	for _, name := range note.LabelNames() {
		tag := keepdomain.SanitizeTag(name)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		fm.Tags = append(fm.Tags, tag)
	}

	b, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("render frontmatter: %w", err)
	}
	if string(b) == "{}\n" {
		return "", nil
	}
	return "---\n" + string(b) + "---\n", nil
}

func formatDateValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
