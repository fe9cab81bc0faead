package cleanup

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/distlock"
)

// memRepo is an in-memory cleanup Repository.
type memRepo struct {
	mu         sync.Mutex
	expired    []ExpiredSession
	counts     map[string]domain.EntityCounts
	notExpire  map[string]bool // sessions that became imported after listing
	referenced map[string]struct{}
	listErr    error
	refErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		counts:     make(map[string]domain.EntityCounts),
		notExpire:  make(map[string]bool),
		referenced: make(map[string]struct{}),
	}
}

func (m *memRepo) ListExpired(_ context.Context, _ time.Time) ([]ExpiredSession, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExpiredSession(nil), m.expired...), nil
}

func (m *memRepo) ExpireSession(_ context.Context, id string) (domain.EntityCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notExpire[id] {
		return domain.EntityCounts{}, ErrNotExpirable
	}
	counts := m.counts[id]
	// Expired sessions drop out of the next listing.
	kept := m.expired[:0]
	for _, s := range m.expired {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	m.expired = kept
	return counts, nil
}

func (m *memRepo) ReferencedKeys(_ context.Context) (map[string]struct{}, error) {
	if m.refErr != nil {
		return nil, m.refErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.referenced))
	for k := range m.referenced {
		out[k] = struct{}{}
	}
	return out, nil
}

// memStore is an in-memory FileStore.
type memStore struct {
	mu    sync.Mutex
	files map[string]bool
}

func newMemStore(keys ...string) *memStore {
	s := &memStore{files: make(map[string]bool)}
	for _, k := range keys {
		s.files[k] = true
	}
	return s
}

func (m *memStore) Save(_ context.Context, key string, r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = true
	return nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
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

// memLock is an in-process DistLock.
type memLock struct {
	mu   *sync.Mutex
	held bool
}

func (l *memLock) Acquire(_ context.Context) (bool, error) {
	if l.mu.TryLock() {
		l.held = true
		return true, nil
	}
	return false, nil
}

func (l *memLock) Release(_ context.Context) error {
	if l.held {
		l.held = false
		l.mu.Unlock()
	}
	return nil
}

func TestRunExpiresOverdueSessions(t *testing.T) {
	repo := newMemRepo()
	repo.expired = []ExpiredSession{{
		ID:         "old-1",
		FilePath:   "uploads/old-1.pdf",
		ImagePaths: []string{"images/old-1/0.png", "images/old-1/1.png"},
	}}
	repo.counts["old-1"] = domain.EntityCounts{Families: 1, Products: 2, Variations: 3, Images: 2}
	store := newMemStore("uploads/old-1.pdf", "images/old-1/0.png", "images/old-1/1.png")
	svc := NewService(repo, store, nil)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredUploads)
	assert.Equal(t, 8, res.Expired.Total())
	assert.Equal(t, 3, res.FilesDeleted)
	assert.Empty(t, store.files)
}

func TestRunIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	repo.expired = []ExpiredSession{{ID: "old-1", FilePath: "uploads/old-1.pdf"}}
	repo.counts["old-1"] = domain.EntityCounts{Products: 1}
	store := newMemStore("uploads/old-1.pdf")
	svc := NewService(repo, store, nil)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredUploads)
	assert.Zero(t, res.FilesDeleted)
	assert.Zero(t, res.OrphansDeleted)
}

func TestRunSkipsSessionImportedAfterListing(t *testing.T) {
	repo := newMemRepo()
	repo.expired = []ExpiredSession{{ID: "racy", FilePath: "uploads/racy.pdf"}}
	repo.notExpire["racy"] = true
	// The file stays referenced, so the orphan sweep must leave it too.
	repo.referenced["uploads/racy.pdf"] = struct{}{}
	store := newMemStore("uploads/racy.pdf")
	svc := NewService(repo, store, nil)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredUploads)
	assert.True(t, store.files["uploads/racy.pdf"])
}

func TestRunDeletesOrphanFiles(t *testing.T) {
	repo := newMemRepo()
	repo.referenced["uploads/live.pdf"] = struct{}{}
	repo.referenced["images/live/0.png"] = struct{}{}
	store := newMemStore(
		"uploads/live.pdf",
		"uploads/ghost.pdf",
		"images/live/0.png",
		"images/ghost/7.png",
	)
	svc := NewService(repo, store, nil)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.OrphansScanned)
	assert.Equal(t, 2, res.OrphansDeleted)
	assert.True(t, store.files["uploads/live.pdf"])
	assert.True(t, store.files["images/live/0.png"])
	assert.False(t, store.files["uploads/ghost.pdf"])
	assert.False(t, store.files["images/ghost/7.png"])
}

func TestRunOrphanSweepSparesImportedImages(t *testing.T) {
	repo := newMemRepo()
	// The staged rows and the session are gone; a production image row is
	// the only remaining reference, and it must be enough.
	repo.referenced["images/s1/0.jpg"] = struct{}{}
	store := newMemStore("images/s1/0.jpg")
	svc := NewService(repo, store, nil)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphansScanned)
	assert.Zero(t, res.OrphansDeleted)
	assert.True(t, store.files["images/s1/0.jpg"])
}

func TestRunOrphanSweepSurvivesExpiryFailure(t *testing.T) {
	repo := newMemRepo()
	repo.listErr = errors.New("db down")
	store := newMemStore("uploads/ghost.pdf")
	svc := NewService(repo, store, nil)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredUploads)
	assert.Equal(t, 1, res.OrphansDeleted)
}

func TestRunExpiryRunsWhenOrphanSweepFails(t *testing.T) {
	repo := newMemRepo()
	repo.expired = []ExpiredSession{{ID: "old-1", FilePath: "uploads/old-1.pdf"}}
	repo.refErr = errors.New("db down")
	store := newMemStore("uploads/old-1.pdf")
	svc := NewService(repo, store, nil)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredUploads)
	assert.Zero(t, res.OrphansScanned)
}

func TestRunRespectsLock(t *testing.T) {
	var mu sync.Mutex
	factory := func() distlock.DistLock { return &memLock{mu: &mu} }
	svc := NewService(newMemRepo(), newMemStore(), factory)

	// Simulate another process holding the lock.
	mu.Lock()
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	mu.Unlock()

	// Once free, the run proceeds and releases the lock again.
	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.NoError(t, err)
}
