package parser

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/logger"
	"github.com/arborline/catalog-server/internal/storage"
)

// ReviewThreshold is the extraction confidence below which a product is
// flagged for mandatory human review.
const ReviewThreshold = 70

// ProgressWriter publishes hot progress snapshots. Satisfied by
// progress.Tracker.
type ProgressWriter interface {
	Publish(ctx context.Context, p *domain.ParseProgress) error
}

// Runner executes parses in background goroutines. It satisfies the
// session service's launch contract.
type Runner struct {
	store     Store
	files     storage.FileStore
	progress  ProgressWriter
	extractor Extractor
	wg        sync.WaitGroup
}

// NewRunner creates a parse runner.
func NewRunner(store Store, files storage.FileStore, progress ProgressWriter, extractor Extractor) *Runner {
	return &Runner{store: store, files: files, progress: progress, extractor: extractor}
}

// Launch starts a background parse for the session. It returns immediately;
// outcome is observable through the session row and the progress cache.
func (r *Runner) Launch(sessionID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(sessionID)
	}()
}

// Wait blocks until all launched parses finish. Used on shutdown.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(sessionID string) {
	// Detached from the upload request; the parse outlives it.
	ctx := context.Background()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("parse panicked", "session", sessionID, "panic", rec)
			r.fail(ctx, sessionID, "internal error during parse")
		}
	}()

	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		logger.Error("load session failed", "session", sessionID, "error", err)
		return
	}
	if sess.Status != domain.SessionUploading {
		// A restarted worker may re-launch sessions that already ran.
		logger.Warn("parse skipped", "session", sessionID, "status", sess.Status)
		return
	}

	file, err := r.files.Open(ctx, sess.FilePath)
	if err != nil {
		logger.Error("open stored catalog failed", "key", sess.FilePath, "error", err)
		r.fail(ctx, sessionID, "stored catalog file is unreadable")
		return
	}
	defer file.Close()

	sink := &runSink{runner: r, ctx: ctx, sessionID: sessionID, maxPages: sess.MaxPages}

	start := time.Now()
	if err := r.extractor.Extract(ctx, file, sess.MaxPages, sink); err != nil {
		logger.Error("extract failed", "session", sessionID, "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		r.fail(ctx, sessionID, err.Error())
		return
	}
	if err := sink.flush("finalizing"); err != nil {
		logger.Error("final flush failed", "session", sessionID, "error", err)
		r.fail(ctx, sessionID, "failed to persist extracted data")
		return
	}

	if err := r.store.MarkCompleted(ctx, sessionID); err != nil {
		logger.Error("mark completed failed", "session", sessionID, "error", err)
		return
	}
	logger.Info("parse completed", "session", sessionID,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"pages", sink.snapshot.PagesProcessed,
		"families", sink.snapshot.FamiliesFound,
		"products", sink.snapshot.ProductsFound,
		"variations", sink.snapshot.VariationsFound,
		"images", sink.snapshot.ImagesExtracted)
}

func (r *Runner) fail(ctx context.Context, sessionID, msg string) {
	if err := r.store.MarkFailed(ctx, sessionID, msg); err != nil {
		logger.Error("persist parse failure failed", "session", sessionID, "error", err)
	}
}

// runSink implements Sink for one parse run. Counters only ever grow; the
// snapshot published after each page is the authoritative progress source
// while the session is parsing.
type runSink struct {
	runner    *Runner
	ctx       context.Context
	sessionID string
	maxPages  int

	started  bool
	batch    Batch
	imageSeq int
	snapshot domain.ParseProgress
}

func (s *runSink) StartDocument(totalPages int) error {
	if s.maxPages > 0 && totalPages > s.maxPages {
		totalPages = s.maxPages
	}
	s.started = true
	s.snapshot.SessionID = s.sessionID
	s.snapshot.TotalPages = totalPages
	s.snapshot.CurrentStep = "scanning pages"
	if err := s.runner.store.MarkParsing(s.ctx, s.sessionID, totalPages); err != nil {
		return fmt.Errorf("mark parsing: %w", err)
	}
	s.publish()
	return nil
}

func (s *runSink) AddFamily(f *domain.StagedFamily) (string, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.UploadID = s.sessionID
	f.CreatedAt = time.Now().UTC()
	s.batch.Families = append(s.batch.Families, *f)
	s.snapshot.FamiliesFound++
	return f.ID, nil
}

func (s *runSink) AddProduct(p *domain.StagedProduct) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.UploadID = s.sessionID
	p.CreatedAt = time.Now().UTC()
	if p.ExtractionConfidence < ReviewThreshold {
		p.RequiresReview = true
	}
	s.batch.Products = append(s.batch.Products, *p)
	s.snapshot.ProductsFound++
	return p.ID, nil
}

func (s *runSink) AddVariation(v *domain.StagedVariation) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.UploadID = s.sessionID
	v.CreatedAt = time.Now().UTC()
	s.batch.Variations = append(s.batch.Variations, *v)
	s.snapshot.VariationsFound++
	return nil
}

func (s *runSink) AddImage(img *domain.StagedImage, data []byte) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	img.UploadID = s.sessionID
	img.CreatedAt = time.Now().UTC()

	meta, err := DecodeMeta(data)
	if err == nil {
		img.WidthPx = meta.Width
		img.HeightPx = meta.Height
	}
	ext := ".png"
	if err == nil && meta.Ext != "" {
		ext = meta.Ext
	}
	key := path.Join("images", s.sessionID, fmt.Sprintf("%d%s", s.imageSeq, ext))
	s.imageSeq++
	if err := s.runner.files.Save(s.ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	img.Path = key

	s.batch.Images = append(s.batch.Images, *img)
	s.snapshot.ImagesExtracted++
	return nil
}

func (s *runSink) PageDone(page int) error {
	s.snapshot.PagesProcessed = page
	return s.flush(s.snapshot.CurrentStep)
}

func (s *runSink) Step(name string) {
	s.snapshot.CurrentStep = name
	s.publish()
}

// flush persists the buffered batch and the progress counters.
func (s *runSink) flush(step string) error {
	if !s.batch.Empty() {
		if err := s.runner.store.InsertBatch(s.ctx, s.batch); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		s.batch = Batch{}
	}
	s.snapshot.CurrentStep = step
	if err := s.runner.store.SaveProgress(s.ctx, &s.snapshot); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	s.publish()
	return nil
}

// publish pushes the snapshot to the hot cache; cache errors never fail a
// parse.
func (s *runSink) publish() {
	s.snapshot.UpdatedAt = time.Now().UTC()
	snap := s.snapshot
	if err := s.runner.progress.Publish(s.ctx, &snap); err != nil {
		logger.Warn("progress publish failed", "session", s.sessionID, "error", err)
	}
}
