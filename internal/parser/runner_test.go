package parser

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborline/catalog-server/internal/domain"
)

// memStore records status transitions and inserted batches.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.UploadSession
	batches   []Batch
	progress  []domain.ParseProgress
	completed []string
	failed    map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*domain.UploadSession),
		failed:   make(map[string]string),
	}
}

func (m *memStore) GetSession(_ context.Context, id string) (*domain.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) MarkParsing(_ context.Context, id string, totalPages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.Status = domain.SessionParsing
	s.TotalPages = totalPages
	return nil
}

func (m *memStore) InsertBatch(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return nil
}

func (m *memStore) SaveProgress(_ context.Context, p *domain.ParseProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, *p)
	return nil
}

func (m *memStore) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].Status = domain.SessionCompleted
	m.completed = append(m.completed, id)
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].Status = domain.SessionFailed
	m.failed[id] = msg
	return nil
}

// memFiles is an in-memory file store.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{files: make(map[string][]byte)} }

func (m *memFiles) Save(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return nil
}

func (m *memFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *memFiles) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.files {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// memProgress records published snapshots.
type memProgress struct {
	mu        sync.Mutex
	snapshots []domain.ParseProgress
}

func (m *memProgress) Publish(_ context.Context, p *domain.ParseProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, *p)
	return nil
}

// scriptExtractor drives the sink with a fixed scenario.
type scriptExtractor struct {
	script func(sink Sink) error
}

func (e *scriptExtractor) Extract(_ context.Context, _ io.Reader, _ int, sink Sink) error {
	return e.script(sink)
}

func seedRunner(t *testing.T, script func(Sink) error) (*Runner, *memStore, *memFiles, *memProgress) {
	t.Helper()
	store := newMemStore()
	store.sessions["sess-1"] = &domain.UploadSession{
		ID:       "sess-1",
		Status:   domain.SessionUploading,
		FilePath: "uploads/sess-1.pdf",
		MaxPages: 5,
	}
	files := newMemFiles()
	require.NoError(t, files.Save(context.Background(), "uploads/sess-1.pdf", strings.NewReader("%PDF-1.4 fake")))
	prog := &memProgress{}
	r := NewRunner(store, files, prog, &scriptExtractor{script: script})
	return r, store, files, prog
}

func tinyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestRunnerHappyPath(t *testing.T) {
	img := tinyPNG(t, 64, 48)
	r, store, files, prog := seedRunner(t, func(sink Sink) error {
		if err := sink.StartDocument(3); err != nil {
			return err
		}
		famID, err := sink.AddFamily(&domain.StagedFamily{Name: "Oslo", SourcePage: 1})
		if err != nil {
			return err
		}
		prodID, err := sink.AddProduct(&domain.StagedProduct{
			Name: "Oslo Chair", ModelNumber: "OSL-100", FamilyID: &famID,
			PriceCents: 24900, ExtractionConfidence: 90, SourcePage: 1,
		})
		if err != nil {
			return err
		}
		if err := sink.AddVariation(&domain.StagedVariation{ProductID: prodID, SKU: "OSL-100-BLK"}); err != nil {
			return err
		}
		if err := sink.PageDone(1); err != nil {
			return err
		}
		if err := sink.AddImage(&domain.StagedImage{ProductID: prodID, Roles: []domain.ImageRole{domain.RolePrimary}}, img); err != nil {
			return err
		}
		if err := sink.PageDone(2); err != nil {
			return err
		}
		return sink.PageDone(3)
	})

	r.Launch("sess-1")
	r.Wait()

	assert.Equal(t, []string{"sess-1"}, store.completed)
	assert.Equal(t, domain.SessionCompleted, store.sessions["sess-1"].Status)

	// One batch per non-empty page.
	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0].Families, 1)
	assert.Len(t, store.batches[0].Products, 1)
	assert.Len(t, store.batches[0].Variations, 1)
	assert.Len(t, store.batches[1].Images, 1)

	// The image landed in the store with probed dimensions.
	stored := store.batches[1].Images[0]
	assert.Equal(t, "images/sess-1/0.png", stored.Path)
	assert.Equal(t, 64, stored.WidthPx)
	assert.Equal(t, 48, stored.HeightPx)
	assert.Contains(t, files.files, "images/sess-1/0.png")

	// Progress was published and only ever grew.
	require.NotEmpty(t, prog.snapshots)
	last := domain.ParseProgress{}
	for _, snap := range prog.snapshots {
		assert.GreaterOrEqual(t, snap.PagesProcessed, last.PagesProcessed)
		assert.GreaterOrEqual(t, snap.ProductsFound, last.ProductsFound)
		last = snap
	}
	assert.Equal(t, 3, last.PagesProcessed)
	assert.Equal(t, 1, last.ProductsFound)
}

func TestRunnerClampsTotalPages(t *testing.T) {
	r, store, _, _ := seedRunner(t, func(sink Sink) error {
		// Extractor reports more pages than the session's max_pages.
		if err := sink.StartDocument(200); err != nil {
			return err
		}
		return sink.PageDone(1)
	})

	r.Launch("sess-1")
	r.Wait()

	assert.Equal(t, 5, store.sessions["sess-1"].TotalPages)
}

func TestRunnerFlagsLowConfidenceForReview(t *testing.T) {
	r, store, _, _ := seedRunner(t, func(sink Sink) error {
		if err := sink.StartDocument(1); err != nil {
			return err
		}
		if _, err := sink.AddProduct(&domain.StagedProduct{
			Name: "Blurry Table", ModelNumber: "BLR-1", ExtractionConfidence: 55,
		}); err != nil {
			return err
		}
		if _, err := sink.AddProduct(&domain.StagedProduct{
			Name: "Sharp Table", ModelNumber: "SHR-1", ExtractionConfidence: 85,
		}); err != nil {
			return err
		}
		return sink.PageDone(1)
	})

	r.Launch("sess-1")
	r.Wait()

	require.Len(t, store.batches, 1)
	products := store.batches[0].Products
	require.Len(t, products, 2)
	assert.True(t, products[0].RequiresReview)
	assert.False(t, products[1].RequiresReview)
}

func TestRunnerExtractErrorMarksFailed(t *testing.T) {
	r, store, _, _ := seedRunner(t, func(sink Sink) error {
		if err := sink.StartDocument(2); err != nil {
			return err
		}
		return errors.New("page 2: garbled xref table")
	})

	r.Launch("sess-1")
	r.Wait()

	assert.Equal(t, domain.SessionFailed, store.sessions["sess-1"].Status)
	assert.Equal(t, "page 2: garbled xref table", store.failed["sess-1"])
	assert.Empty(t, store.completed)
}

func TestRunnerPanicMarksFailed(t *testing.T) {
	r, store, _, _ := seedRunner(t, func(sink Sink) error {
		panic("slice out of range in layout pass")
	})

	r.Launch("sess-1")
	r.Wait()

	assert.Equal(t, domain.SessionFailed, store.sessions["sess-1"].Status)
	assert.Equal(t, "internal error during parse", store.failed["sess-1"])
}

func TestRunnerMissingFileMarksFailed(t *testing.T) {
	r, store, files, _ := seedRunner(t, func(sink Sink) error { return nil })
	require.NoError(t, files.Delete(context.Background(), "uploads/sess-1.pdf"))

	r.Launch("sess-1")
	r.Wait()

	assert.Equal(t, domain.SessionFailed, store.sessions["sess-1"].Status)
}

func TestRunnerSkipsNonUploadingSession(t *testing.T) {
	called := false
	r, store, _, _ := seedRunner(t, func(sink Sink) error {
		called = true
		return nil
	})
	store.sessions["sess-1"].Status = domain.SessionCompleted

	r.Launch("sess-1")
	r.Wait()

	assert.False(t, called)
	assert.Equal(t, domain.SessionCompleted, store.sessions["sess-1"].Status)
	assert.Empty(t, store.failed)
}
