// Package localdir serves source bytes from a directory tree and
// discovers files in it, either by a full scan or by watching for
// changes.
package localdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

type Source struct {
	root string
	log  *slog.Logger
}

func New(root string, log *slog.Logger) (*Source, error) {
	if root == "" {
		root = "./data/sources"
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create source root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	return &Source{root: abs, log: log}, nil
}

// Fetch reads the bytes behind a source record. The path hint must stay
// inside the root.
func (s *Source) Fetch(_ context.Context, rec *domain.SourceRecord) ([]byte, error) {
	hint := rec.PathHint
	if hint == "" {
		hint = rec.Name
	}
	if hint == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch source bytes",
			fmt.Errorf("source %s has no path", rec.ID))
	}
	if !filepath.IsLocal(hint) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch source bytes",
			fmt.Errorf("path %q escapes the source root", hint))
	}

	data, err := os.ReadFile(filepath.Join(s.root, hint))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "fetch source bytes", err)
		}
		return nil, fmt.Errorf("read source file: %w", err)
	}
	return data, nil
}

// Scan walks the root and returns a source record per regular file.
// Hidden files and directories are skipped. Record ids are derived
// from the relative path, so repeated scans yield the same ids.
func (s *Source) Scan(ctx context.Context) ([]domain.SourceRecord, error) {
	var out []domain.SourceRecord
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rec, err := s.record(path, info)
		if err != nil {
			return err
		}
		out = append(out, *rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	return out, nil
}

// Watch blocks and invokes handler for every file created, modified or
// removed under the root. removed is true for deletions and renames.
// It returns nil once ctx is cancelled.
func (s *Source) Watch(ctx context.Context, handler func(context.Context, *domain.SourceRecord, bool) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := s.watchTree(w, s.root); err != nil {
		return fmt.Errorf("watch %s: %w", s.root, err)
	}
	s.log.Info("localdir.watching", "root", s.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, w, event, handler)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("localdir.watch_error", "error", err)
		}
	}
}

// watchTree registers dir and every non-hidden directory below it.
// fsnotify watches are not recursive, so each level needs its own Add.
func (s *Source) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (s *Source) handleEvent(ctx context.Context, w *fsnotify.Watcher, event fsnotify.Event, handler func(context.Context, *domain.SourceRecord, bool) error) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
	changed := event.Op&(fsnotify.Create|fsnotify.Write) != 0
	if !removed && !changed {
		return
	}

	var rec *domain.SourceRecord
	if removed {
		r, err := s.record(event.Name, nil)
		if err != nil {
			s.log.Warn("localdir.event_skipped", "path", event.Name, "error", err)
			return
		}
		rec = r
	} else {
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				if err := s.watchTree(w, event.Name); err != nil {
					s.log.Warn("localdir.watch_subdir_failed", "path", event.Name, "error", err)
				}
			}
			return
		}
		r, err := s.record(event.Name, info)
		if err != nil {
			s.log.Warn("localdir.event_skipped", "path", event.Name, "error", err)
			return
		}
		rec = r
	}

	if err := handler(ctx, rec, removed); err != nil {
		s.log.Warn("localdir.handler_error", "path", event.Name, "error", err)
	}
}

func (s *Source) record(path string, info fs.FileInfo) (*domain.SourceRecord, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return nil, fmt.Errorf("relativize %s: %w", path, err)
	}
	now := time.Now().UTC()
	rec := &domain.SourceRecord{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(rel)).String(),
		Name:      filepath.Base(path),
		MimeType:  mimeByExtension(path),
		PathHint:  filepath.ToSlash(rel),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if info != nil {
		rec.Metadata = map[string]any{
			"size_bytes":  info.Size(),
			"modified_at": info.ModTime().UTC().Format(time.RFC3339),
		}
	}
	return rec, nil
}

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
}

func mimeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
