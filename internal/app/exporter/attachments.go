package exporter

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
	"github.com/sleroq/keep-to-markdown/internal/infra/exportfs"
)

type blobLinker interface {
	MediaLink(ctx context.Context, blob keepdomain.BlobRef) (string, error)
}

type attachmentResolver struct {
	store       blobLinker
	fetcher     MediaFetcher
	mediaNames  *keepdomain.NameRegistry
	mediaTarget string
}

// ResolveAttachments fetches blobs in order and hands each one to yield before
// fetching the next. It writes nothing itself.
func (a attachmentResolver) ResolveAttachments(ctx context.Context, uniqueName string, blobs []keepdomain.BlobRef, yield func(keepdomain.Attachment) error) error {
	for i, blob := range blobs {
		att, err := a.resolve(ctx, uniqueName, i, blob)
		if err != nil {
			return fmt.Errorf("attachment %d: %w", i, err)
		}
		if err := yield(att); err != nil {
			return fmt.Errorf("attachment %d: %w", i, err)
		}
	}
	return nil
}

func (a attachmentResolver) resolve(ctx context.Context, uniqueName string, index int, blob keepdomain.BlobRef) (keepdomain.Attachment, error) {
	link, err := a.store.MediaLink(ctx, blob)
	if err != nil {
		return keepdomain.Attachment{}, fmt.Errorf("media link: %w", err)
	}
	content, contentType, err := a.fetcher.Fetch(ctx, link)
	if err != nil {
		return keepdomain.Attachment{}, fmt.Errorf("fetch media: %w", err)
	}
	ext, err := exportfs.ExtensionForContentType(contentType)
	if err != nil {
		return keepdomain.Attachment{}, err
	}

	base := keepdomain.AttachmentBaseName(uniqueName, index)
	if a.mediaNames != nil {
		base = a.mediaNames.Dedupe(base)
	}
	filename := base + ext
	return keepdomain.Attachment{
		Filename: filename,
		Content:  content,
		Markup:   keepdomain.MediaMarkup(base, path.Join(a.mediaTarget, filename)),
	}, nil
}

// mediaTargetDir is the media root as seen from a note file, slash separated.
func mediaTargetDir(notesDir string, mediaDir string) string {
	absNotes, errNotes := filepath.Abs(notesDir)
	absMedia, errMedia := filepath.Abs(mediaDir)
	if errNotes != nil || errMedia != nil {
		return filepath.ToSlash(filepath.Clean(mediaDir))
	}
	rel, err := filepath.Rel(absNotes, absMedia)
	if err != nil {
		return filepath.ToSlash(absMedia)
	}
	return filepath.ToSlash(rel)
}
