package exportfs

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

var preferredExt = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/svg+xml":    ".svg",
	"image/x-icon":     ".ico",
	"image/heic":       ".heic",
	"audio/3gpp":       ".3gp",
	"audio/amr":        ".amr",
	"audio/mp4":        ".m4a",
	"audio/mpeg":       ".mp3",
	"application/pdf":  ".pdf",
	"application/json": ".json",
	"text/plain":       ".txt",
}

// ExtensionForContentType maps a Content-Type header value to a file extension
// including the leading dot.
func ExtensionForContentType(contentType string) (string, error) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", fmt.Errorf("%w: empty content type", keepdomain.ErrUnknownContentType)
	}
	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mimeType = contentType
		if idx := strings.Index(mimeType, ";"); idx >= 0 {
			mimeType = mimeType[:idx]
		}
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	if ext, ok := preferredExt[mimeType]; ok {
		return ext, nil
	}

	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return "", fmt.Errorf("%w: %q", keepdomain.ErrUnknownContentType, contentType)
	}
	sort.Strings(exts)
	return exts[0], nil
}

// ResetDir removes dir with everything in it and creates it again empty.
func ResetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove %s: %v", keepdomain.ErrFilesystem, dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", keepdomain.ErrFilesystem, dir, err)
	}
	return nil
}

// Within reports whether path is dir itself or lies below it, after both are
// made absolute and cleaned.
func Within(path string, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// CheckRoots rejects a media root that contains the notes root: resetting it
// would remove the notes and the run lock beside them. A media root inside
// the notes root, or the same directory for both, is fine.
func CheckRoots(notesDir string, mediaDir string) error {
	if Within(notesDir, mediaDir) && !Within(mediaDir, notesDir) {
		return fmt.Errorf("media directory %s contains the notes directory %s", mediaDir, notesDir)
	}
	return nil
}

// RunLock is an exclusive advisory lock held while an export owns its output roots.
type RunLock struct {
	lock *flock.Flock
}

func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create lock dir: %v", keepdomain.ErrFilesystem, err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", keepdomain.ErrFilesystem, path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is held by another export", keepdomain.ErrFilesystem, path)
	}
	return &RunLock{lock: lock}, nil
}

func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(l.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	return nil
}

func AppendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	return nil
}

// WriteFileAtomic writes through a temp file in the same directory and renames
// it over path.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	return nil
}

// ApplyFileTimes stamps an exported file with the note's edit time and, where
// the platform allows, its creation time.
func ApplyFileTimes(path string, created time.Time, updated time.Time) error {
	mtime := updated
	if mtime.IsZero() {
		mtime = created
	}
	if mtime.IsZero() {
		return nil
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	if err := setFileCreationTime(path, created); err != nil {
		return fmt.Errorf("%w: %v", keepdomain.ErrFilesystem, err)
	}
	return nil
}
