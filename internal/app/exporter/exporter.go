package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
	"github.com/sleroq/keep-to-markdown/internal/infra/exportfs"
)

const (
	DefaultMigrateLabel = "Ready to Export"
	DefaultSuccessLabel = "Succesfully Exported"

	lockFileName = ".keep-to-markdown.lock"
)

// NoteStore is the remote note service. Label changes made with SetLabels are
// only durable after Sync.
type NoteStore interface {
	Sync(ctx context.Context) error
	FindLabel(ctx context.Context, name string) (keepdomain.Label, bool, error)
	CreateLabel(ctx context.Context, name string) (keepdomain.Label, error)
	Find(ctx context.Context, labels ...keepdomain.Label) ([]keepdomain.Note, error)
	SetLabels(ctx context.Context, noteID string, labels []keepdomain.Label) error
	MediaLink(ctx context.Context, blob keepdomain.BlobRef) (string, error)
}

// Authenticator is implemented by stores that need a login before Sync.
type Authenticator interface {
	Login(ctx context.Context, user string, secret string) error
}

type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type Exporter struct {
	Store   NoteStore
	Fetcher MediaFetcher
	Logger  *slog.Logger

	NotesDir     string
	MediaDir     string
	MigrateLabel string
	SuccessLabel string
	Username     string
	Password     string

	Frontmatter        bool
	KeepGoing          bool
	RemoveMigrateLabel bool
	ShowProgress       bool
}

type Stats struct {
	RunID    string
	Notes    int
	Files    int
	Failed   int
	Exported []keepdomain.ExportedNote
}

// run carries the state shared by every note of one export pass.
type run struct {
	Exporter
	ctx          context.Context
	logger       *slog.Logger
	names        *keepdomain.NameRegistry
	mediaNames   *keepdomain.NameRegistry
	migrate      keepdomain.Label
	success      *keepdomain.Label
	mediaTarget  string
	manifest     *manifest
	manifestPath string
}

func (e Exporter) Run(ctx context.Context) (Stats, error) {
	if e.Store == nil || e.Fetcher == nil {
		return Stats{}, fmt.Errorf("note store and media fetcher are required")
	}
	if strings.TrimSpace(e.NotesDir) == "" || strings.TrimSpace(e.MediaDir) == "" {
		return Stats{}, fmt.Errorf("notes and media directories are required")
	}
	if err := exportfs.CheckRoots(e.NotesDir, e.MediaDir); err != nil {
		return Stats{}, err
	}
	if e.MigrateLabel == "" {
		e.MigrateLabel = DefaultMigrateLabel
	}
	if e.SuccessLabel == "" {
		e.SuccessLabel = DefaultSuccessLabel
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.New().String()
	logger = logger.With("run", runID)
	stats := Stats{RunID: runID}

	lock, err := exportfs.AcquireRunLock(filepath.Join(filepath.Dir(filepath.Clean(e.NotesDir)), lockFileName))
	if err != nil {
		return stats, fmt.Errorf("lock output: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release output lock", "error", err)
		}
	}()

	if auth, ok := e.Store.(Authenticator); ok {
		logger.Debug("logging in", "user", e.Username)
		if err := auth.Login(ctx, e.Username, e.Password); err != nil {
			return stats, fmt.Errorf("login: %w", err)
		}
	}

	for _, dir := range []string{e.NotesDir, e.MediaDir} {
		if err := exportfs.ResetDir(dir); err != nil {
			return stats, fmt.Errorf("prepare output: %w", err)
		}
	}

	if err := e.Store.Sync(ctx); err != nil {
		return stats, fmt.Errorf("sync notes: %w", err)
	}
	migrate, ok, err := e.Store.FindLabel(ctx, e.MigrateLabel)
	if err != nil {
		return stats, fmt.Errorf("find label %q: %w", e.MigrateLabel, err)
	}
	if !ok {
		logger.Warn("migration label not found, nothing to export", "label", e.MigrateLabel)
		return stats, nil
	}
	notes, err := e.Store.Find(ctx, migrate)
	if err != nil {
		return stats, fmt.Errorf("find notes labeled %q: %w", e.MigrateLabel, err)
	}
	logger.Info("exporting notes", "count", len(notes), "label", migrate.Name)

	r := &run{
		Exporter:     e,
		ctx:          ctx,
		logger:       logger,
		names:        keepdomain.NewNameRegistry(),
		mediaNames:   keepdomain.NewNameRegistry(),
		migrate:      migrate,
		mediaTarget:  mediaTargetDir(e.NotesDir, e.MediaDir),
		manifest:     newManifest(runID, time.Now()),
		manifestPath: filepath.Join(e.NotesDir, manifestFileName),
	}

	bar := newNoteProgress(len(notes), e.ShowProgress)
	defer bar.stop()

	var failures []error
	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return stats, errors.Join(append(failures, err)...)
		}
		exported, err := r.exportNote(note)
		if err != nil {
			err = fmt.Errorf("export note %q (%s): %w", note.Title, note.ID, err)
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = errors.Join(err, ctxErr)
			}
			if !e.KeepGoing || ctx.Err() != nil {
				return stats, err
			}
			logger.Error("note export failed", "note", note.ID, "error", err)
			failures = append(failures, err)
			stats.Failed++
			bar.skipped(note.Title)
			continue
		}

		stats.Notes++
		stats.Files += len(exported.MediaFiles)
		stats.Exported = append(stats.Exported, exported)

		r.manifest.add(note, exported)
		if err := r.manifest.write(r.manifestPath); err != nil {
			return stats, fmt.Errorf("write manifest: %w", err)
		}
		bar.exported(exported.UniqueName)
	}

	if len(failures) > 0 {
		return stats, errors.Join(failures...)
	}
	return stats, nil
}

// exportNote takes one note through text, attachments, label and sync. Any
// error leaves the note's labels untouched and keeps files already written.
func (r *run) exportNote(note keepdomain.Note) (keepdomain.ExportedNote, error) {
	name := keepdomain.ExportTitle(note.Title)
	if strings.TrimSpace(name) == "" {
		name = keepdomain.UntitledName
	}
	exported := keepdomain.ExportedNote{
		NoteID:     note.ID,
		UniqueName: r.names.Dedupe(name),
	}
	exported.BodyPath = filepath.Join(r.NotesDir, exported.UniqueName+".md")
	logger := r.logger.With("note", note.ID, "name", exported.UniqueName)

	body := keepdomain.RewriteText(note.Text)
	if r.Frontmatter {
		fm, err := renderFrontmatter(note)
		if err != nil {
			return exported, err
		}
		body = fm + body
	}
	if err := exportfs.WriteFile(exported.BodyPath, []byte(body)); err != nil {
		return exported, fmt.Errorf("write note: %w", err)
	}
	logger.Debug("note text written", "path", exported.BodyPath)

	resolver := attachmentResolver{
		store:       r.Store,
		fetcher:     r.Fetcher,
		mediaNames:  r.mediaNames,
		mediaTarget: r.mediaTarget,
	}
	err := resolver.ResolveAttachments(r.ctx, exported.UniqueName, note.Blobs, func(a keepdomain.Attachment) error {
		mediaPath := filepath.Join(r.MediaDir, a.Filename)
		if err := exportfs.WriteFile(mediaPath, a.Content); err != nil {
			return fmt.Errorf("write attachment: %w", err)
		}
		if err := exportfs.AppendFile(exported.BodyPath, []byte(a.Markup)); err != nil {
			return fmt.Errorf("append attachment link: %w", err)
		}
		if err := exportfs.ApplyFileTimes(mediaPath, note.Created, note.Updated); err != nil {
			return err
		}
		exported.MediaFiles = append(exported.MediaFiles, mediaPath)
		logger.Debug("attachment written", "path", mediaPath, "bytes", len(a.Content))
		return nil
	})
	if err != nil {
		return exported, err
	}
	if err := exportfs.ApplyFileTimes(exported.BodyPath, note.Created, note.Updated); err != nil {
		return exported, err
	}

	success, err := r.successLabel()
	if err != nil {
		return exported, err
	}
	if err := r.Store.SetLabels(r.ctx, note.ID, r.migratedLabels(note, success)); err != nil {
		return exported, fmt.Errorf("label note: %w", err)
	}
	if err := r.Store.Sync(r.ctx); err != nil {
		return exported, fmt.Errorf("sync label: %w", err)
	}
	logger.Info("note exported", "attachments", len(exported.MediaFiles))
	return exported, nil
}

// successLabel finds or creates the success label once per run.
func (r *run) successLabel() (keepdomain.Label, error) {
	if r.success != nil {
		return *r.success, nil
	}
	label, ok, err := r.Store.FindLabel(r.ctx, r.SuccessLabel)
	if err != nil {
		return keepdomain.Label{}, fmt.Errorf("find label %q: %w", r.SuccessLabel, err)
	}
	if !ok {
		label, err = r.Store.CreateLabel(r.ctx, r.SuccessLabel)
		if err != nil {
			return keepdomain.Label{}, fmt.Errorf("create label %q: %w", r.SuccessLabel, err)
		}
		r.logger.Info("created label", "label", label.Name)
	}
	r.success = &label
	return label, nil
}

func (r *run) migratedLabels(note keepdomain.Note, success keepdomain.Label) []keepdomain.Label {
	out := make([]keepdomain.Label, 0, len(note.Labels)+1)
	hasSuccess := false
	for _, l := range note.Labels {
		if r.RemoveMigrateLabel && sameLabel(l, r.migrate) {
			continue
		}
		if sameLabel(l, success) {
			hasSuccess = true
		}
		out = append(out, l)
	}
	if !hasSuccess {
		out = append(out, success)
	}
	return out
}

func sameLabel(a, b keepdomain.Label) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return strings.EqualFold(a.Name, b.Name)
}
