package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/logger"
	"github.com/arborline/catalog-server/internal/storage"
)

// pdfMagic is the mandatory header of every PDF document. Content sniffing
// happens before any session row or file is written, so a rejected upload
// leaves no trace.
var pdfMagic = []byte("%PDF-")

// Service implements upload-session business logic.
type Service struct {
	repo      Repository
	store     storage.FileStore
	progress  ProgressReader
	launcher  ParseLauncher
	retention time.Duration
	maxBytes  int64
}

// NewService creates a session service. retention bounds how long staged
// data survives before the cleanup sweep reclaims it; maxBytes caps upload
// size (0 means 200MB).
func NewService(repo Repository, store storage.FileStore, progress ProgressReader, launcher ParseLauncher, retention time.Duration, maxBytes int64) *Service {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if maxBytes <= 0 {
		maxBytes = 200 << 20
	}
	return &Service{
		repo:      repo,
		store:     store,
		progress:  progress,
		launcher:  launcher,
		retention: retention,
		maxBytes:  maxBytes,
	}
}

// Create validates and stores an uploaded catalog, creates the session row,
// and hands the session to the parse runner. maxPages of 0 means "parse the
// whole document"; a positive value truncates parsing for partial/test runs.
func (s *Service) Create(ctx context.Context, filename string, r io.Reader, maxPages int) (*domain.UploadSession, error) {
	header := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n < len(pdfMagic) || !bytes.Equal(header[:n], pdfMagic) {
		return nil, ErrInvalidFormat
	}

	id := uuid.New().String()
	filePath := fmt.Sprintf("uploads/%s.pdf", id)

	// Cap the stored size; one byte over the limit aborts the save.
	limited := io.LimitReader(io.MultiReader(bytes.NewReader(header), r), s.maxBytes+1)
	var counted countingReader
	counted.r = limited
	if err := s.store.Save(ctx, filePath, &counted); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if counted.n > s.maxBytes {
		// Remove the oversized object; the orphan sweep would also catch it.
		_ = s.store.Delete(ctx, filePath)
		return nil, ErrTooLarge
	}

	now := time.Now().UTC()
	sess := &domain.UploadSession{
		ID:          id,
		Filename:    filename,
		FilePath:    filePath,
		Status:      domain.SessionUploading,
		MaxPages:    maxPages,
		CurrentStep: "upload received",
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.retention),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		_ = s.store.Delete(ctx, filePath)
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.launcher.Launch(id)
	logger.Info("upload session created", "session", id, "file", filename, "max_pages", maxPages)
	return sess, nil
}

// Get returns a session snapshot. While the session is parsing, counters
// from the hot progress cache overlay the (possibly stale) database row;
// status itself always comes from the database.
func (s *Service) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sess.Status == domain.SessionParsing {
		p, err := s.progress.Get(ctx, id)
		if err != nil {
			logger.Warn("progress cache read failed", "session", id, "error", err)
		} else if p != nil {
			sess.PagesProcessed = max(sess.PagesProcessed, p.PagesProcessed)
			sess.FamiliesFound = max(sess.FamiliesFound, p.FamiliesFound)
			sess.ProductsFound = max(sess.ProductsFound, p.ProductsFound)
			sess.VariationsFound = max(sess.VariationsFound, p.VariationsFound)
			sess.ImagesExtracted = max(sess.ImagesExtracted, p.ImagesExtracted)
			if p.TotalPages > 0 {
				sess.TotalPages = p.TotalPages
			}
			if p.CurrentStep != "" {
				sess.CurrentStep = p.CurrentStep
			}
		}
	}

	return sess, nil
}

// List returns recent sessions for the review dashboard.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.UploadSession, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Delete irreversibly removes the session, its staged rows, and its stored
// files, returning per-entity counts for the caller's audit trail. Deleting
// an imported session removes staged data only: production rows copied the
// staged image paths at import time, so their files stay on disk and only
// the source PDF is removed.
func (s *Service) Delete(ctx context.Context, id string) (*domain.DeleteResult, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var imagePaths []string
	if sess.Status != domain.SessionImported {
		imagePaths, err = s.repo.StagedImagePaths(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("collect image paths: %w", err)
		}
	}

	counts, err := s.repo.DeleteCascade(ctx, id)
	if err != nil {
		return nil, err
	}

	filesDeleted := 0
	for _, key := range append(imagePaths, sess.FilePath) {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			// Rows are gone; a leftover file becomes an orphan and the
			// cleanup sweep reclaims it.
			logger.Warn("stored file delete failed", "key", key, "error", err)
			continue
		}
		filesDeleted++
	}

	if err := s.progress.Clear(ctx, id); err != nil {
		logger.Warn("progress cache clear failed", "session", id, "error", err)
	}

	logger.Info("upload session deleted", "session", id, "rows", counts.Total(), "files", filesDeleted)
	return &domain.DeleteResult{UploadID: id, Deleted: counts, FilesDeleted: filesDeleted}, nil
}

// countingReader counts bytes as they pass through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
