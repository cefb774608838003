package keeptakeout

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

func writeTakeoutNote(t *testing.T, dir string, name string, doc map[string]any) {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o644))
}

func openSynced(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Sync(context.Background()))
	return s
}

func TestFindReturnsLabeledNotes(t *testing.T) {
	dir := t.TempDir()
	writeTakeoutNote(t, dir, "b.json", map[string]any{
		"title":                   "Groceries",
		"textContent":             "eggs",
		"labels":                  []map[string]any{{"name": "Ready to Export"}},
		"createdTimestampUsec":    1600000000000000,
		"userEditedTimestampUsec": 1600000100000000,
		"isPinned":                true,
		"color":                   "RED",
	})
	writeTakeoutNote(t, dir, "a.json", map[string]any{
		"title":  "Shopping",
		"labels": []map[string]any{{"name": "Ready to Export"}},
		"listContent": []map[string]any{
			{"text": "milk", "isChecked": false},
			{"text": "bread", "isChecked": true},
		},
	})
	writeTakeoutNote(t, dir, "c.json", map[string]any{
		"title":  "Untagged",
		"labels": []map[string]any{{"name": "work"}},
	})
	writeTakeoutNote(t, dir, "d.json", map[string]any{
		"title":     "Trashed",
		"isTrashed": true,
		"labels":    []map[string]any{{"name": "Ready to Export"}},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("<html></html>"), 0o644))

	s := openSynced(t, dir)
	ctx := context.Background()

	label, ok, err := s.FindLabel(ctx, "Ready to Export")
	require.NoError(t, err)
	require.True(t, ok)

	notes, err := s.Find(ctx, label)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	assert.Equal(t, "a", notes[0].ID)
	assert.Equal(t, "☐ milk\n☑ bread", notes[0].Text)
	assert.Equal(t, "b", notes[1].ID)
	assert.Equal(t, "Groceries", notes[1].Title)
	assert.Equal(t, "eggs", notes[1].Text)
	assert.True(t, notes[1].Pinned)
	assert.Equal(t, "RED", notes[1].Color)
	assert.Equal(t, time.UnixMicro(1600000100000000).UTC(), notes[1].Updated)
}

func TestFindLabelMissing(t *testing.T) {
	s := openSynced(t, t.TempDir())
	_, ok, err := s.FindLabel(context.Background(), "Ready to Export")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLabelChangesPersistOnSync(t *testing.T) {
	dir := t.TempDir()
	writeTakeoutNote(t, dir, "note.json", map[string]any{
		"title":        "Groceries",
		"labels":       []map[string]any{{"name": "Ready to Export"}},
		"annotations":  []map[string]any{{"url": "https://x.test"}},
		"isArchived":   false,
		"unknownField": "kept",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, labelsFileName), []byte("Ready to Export\n"), 0o644))

	s := openSynced(t, dir)
	ctx := context.Background()

	migrate, ok, err := s.FindLabel(ctx, "Ready to Export")
	require.NoError(t, err)
	require.True(t, ok)

	done, err := s.CreateLabel(ctx, "Succesfully Exported")
	require.NoError(t, err)

	_, err = s.CreateLabel(ctx, "succesfully exported")
	require.Error(t, err)

	require.NoError(t, s.SetLabels(ctx, "note", []keepdomain.Label{migrate, done}))

	raw, err := os.ReadFile(filepath.Join(dir, "note.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Succesfully Exported", "label must stay pending until sync")

	require.NoError(t, s.Sync(ctx))

	raw, err = os.ReadFile(filepath.Join(dir, "note.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "kept", doc["unknownField"])
	assert.Len(t, doc["annotations"], 1)

	labels, err := os.ReadFile(filepath.Join(dir, labelsFileName))
	require.NoError(t, err)
	assert.Equal(t, "Ready to Export\nSuccesfully Exported\n", string(labels))

	notes, err := s.Find(ctx, done)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, []string{"Ready to Export", "Succesfully Exported"}, notes[0].LabelNames())
}

func TestSetLabelsUnknownNote(t *testing.T) {
	s := openSynced(t, t.TempDir())
	err := s.SetLabels(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestMediaLinkResolvesAttachments(t *testing.T) {
	dir := t.TempDir()
	writeTakeoutNote(t, dir, "note.json", map[string]any{
		"title":  "Photo",
		"labels": []map[string]any{{"name": "Ready to Export"}},
		"attachments": []map[string]any{
			{"filePath": "1a2b.png", "mimetype": "image/png"},
			{"filePath": "3c4d.jpeg", "mimetype": "image/jpeg"},
		},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1a2b.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3c4d.jpg"), []byte("jpg"), 0o644))

	s := openSynced(t, dir)
	ctx := context.Background()
	notes, err := s.Find(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Len(t, notes[0].Blobs, 2)
	assert.Equal(t, "image/png", notes[0].Blobs[0].MIMEType)

	link, err := s.MediaLink(ctx, notes[0].Blobs[0])
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, "1a2b.png", filepath.Base(u.Path))

	link, err = s.MediaLink(ctx, notes[0].Blobs[1])
	require.NoError(t, err)
	u, err = url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "3c4d.jpg", filepath.Base(u.Path))

	_, err = s.MediaLink(ctx, keepdomain.BlobRef{ID: "missing.png"})
	require.Error(t, err)
}

func TestMediaLinkRejectsPathsOutsideTakeout(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Keep")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o644))
	writeTakeoutNote(t, dir, "note.json", map[string]any{
		"title":       "Sneaky",
		"attachments": []map[string]any{{"filePath": "../secret.txt", "mimetype": "text/plain"}},
	})

	s := openSynced(t, dir)
	ctx := context.Background()
	notes, err := s.Find(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	for _, id := range []string{notes[0].Blobs[0].ID, "../../etc/passwd", "/etc/passwd", "a/../../secret.txt"} {
		_, err := s.MediaLink(ctx, keepdomain.BlobRef{ID: id})
		assert.Error(t, err, id)
	}
}

func TestOpenRejectsMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	_, err = Open("")
	require.Error(t, err)
}
