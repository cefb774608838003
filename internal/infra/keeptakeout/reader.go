package keeptakeout

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

const labelsFileName = "Labels.txt"

type takeoutListItem struct {
	Text      string `json:"text"`
	IsChecked bool   `json:"isChecked"`
}

type takeoutLabel struct {
	Name string `json:"name"`
}

type takeoutAttachment struct {
	FilePath string `json:"filePath"`
	Mimetype string `json:"mimetype"`
}

type takeoutNote struct {
	Color                   string              `json:"color"`
	IsTrashed               bool                `json:"isTrashed"`
	IsPinned                bool                `json:"isPinned"`
	IsArchived              bool                `json:"isArchived"`
	Title                   string              `json:"title"`
	TextContent             string              `json:"textContent"`
	ListContent             []takeoutListItem   `json:"listContent"`
	Labels                  []takeoutLabel      `json:"labels"`
	Attachments             []takeoutAttachment `json:"attachments"`
	CreatedTimestampUsec    int64               `json:"createdTimestampUsec"`
	UserEditedTimestampUsec int64               `json:"userEditedTimestampUsec"`
}

// noteFile keeps the decoded document next to the raw one so label writes can
// preserve fields this package does not model.
type noteFile struct {
	path    string
	raw     map[string]any
	trashed bool
	note    keepdomain.Note
}

func readNotes(dir string) ([]noteFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read takeout dir: %w", err)
	}
	var out []noteFile
	for _, ent := range entries {
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(ent.Name()), ".json") {
			continue
		}
		f, err := readNote(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].note.ID < out[j].note.ID })
	return out, nil
}

func readNote(path string) (noteFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return noteFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc takeoutNote
	if err := json.Unmarshal(b, &doc); err != nil {
		return noteFile{}, fmt.Errorf("decode %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return noteFile{}, fmt.Errorf("decode %s: %w", path, err)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	note := keepdomain.Note{
		ID:       id,
		Title:    doc.Title,
		Text:     noteText(doc),
		Color:    doc.Color,
		Pinned:   doc.IsPinned,
		Archived: doc.IsArchived,
		Created:  usecToTime(doc.CreatedTimestampUsec),
		Updated:  usecToTime(doc.UserEditedTimestampUsec),
	}
	for _, l := range doc.Labels {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			continue
		}
		note.Labels = append(note.Labels, keepdomain.Label{ID: name, Name: name})
	}
	for _, a := range doc.Attachments {
		if strings.TrimSpace(a.FilePath) == "" {
			continue
		}
		note.Blobs = append(note.Blobs, keepdomain.BlobRef{ID: a.FilePath, MIMEType: a.Mimetype})
	}
	return noteFile{path: path, raw: raw, trashed: doc.IsTrashed, note: note}, nil
}

// noteText renders checklists the way the Keep client does: one glyph-prefixed
// line per item.
func noteText(doc takeoutNote) string {
	if len(doc.ListContent) == 0 {
		return doc.TextContent
	}
	lines := make([]string, 0, len(doc.ListContent))
	for _, item := range doc.ListContent {
		glyph := keepdomain.UncheckedBoxGlyph
		if item.IsChecked {
			glyph = keepdomain.CheckedBoxGlyph
		}
		lines = append(lines, glyph+" "+item.Text)
	}
	return strings.Join(lines, "\n")
}

func usecToTime(usec int64) time.Time {
	if usec <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(usec).UTC()
}

func readLabelNames(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name != "" {
			out = append(out, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

func encodeNote(f noteFile, labels []keepdomain.Label) ([]byte, error) {
	raw := make(map[string]any, len(f.raw)+1)
	for k, v := range f.raw {
		raw[k] = v
	}
	out := make([]map[string]any, 0, len(labels))
	for _, l := range labels {
		out = append(out, map[string]any{"name": l.Name})
	}
	raw["labels"] = out
	return json.MarshalIndent(raw, "", "  ")
}
