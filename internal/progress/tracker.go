// Package progress keeps hot parse-progress snapshots in Redis so status
// polls never touch Postgres on the fast path. Keys expire after 24 hours;
// the session row in the database remains the durable record.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arborline/catalog-server/internal/domain"
)

// TTL bounds how long a progress key outlives its last update. A session
// that parses longer than this keeps refreshing the key on every update.
const TTL = 24 * time.Hour

// Tracker publishes and reads ParseProgress snapshots.
// A nil-client Tracker is a no-op publisher that always reads nothing, so
// callers don't need Redis wiring in development.
type Tracker struct {
	client *redis.Client
}

// NewTracker creates a progress tracker. client may be nil.
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

func key(sessionID string) string {
	return fmt.Sprintf("ingest:progress:%s", sessionID)
}

// Publish stores the snapshot, clamping counters so progress never regresses
// even if two runner updates race. The clamp enforces the monotonicity
// invariant at the storage boundary rather than trusting the writer.
func (t *Tracker) Publish(ctx context.Context, p *domain.ParseProgress) error {
	if t.client == nil {
		return nil
	}

	if prev, err := t.Get(ctx, p.SessionID); err == nil && prev != nil {
		if p.PagesProcessed < prev.PagesProcessed {
			p.PagesProcessed = prev.PagesProcessed
		}
		if p.FamiliesFound < prev.FamiliesFound {
			p.FamiliesFound = prev.FamiliesFound
		}
		if p.ProductsFound < prev.ProductsFound {
			p.ProductsFound = prev.ProductsFound
		}
		if p.VariationsFound < prev.VariationsFound {
			p.VariationsFound = prev.VariationsFound
		}
		if p.ImagesExtracted < prev.ImagesExtracted {
			p.ImagesExtracted = prev.ImagesExtracted
		}
	}

	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := t.client.Set(ctx, key(p.SessionID), data, TTL).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

// Get returns the latest snapshot, or nil if none exists.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*domain.ParseProgress, error) {
	if t.client == nil {
		return nil, nil
	}

	data, err := t.client.Get(ctx, key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	var p domain.ParseProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}

// Clear removes the snapshot once a session reaches a terminal status.
func (t *Tracker) Clear(ctx context.Context, sessionID string) error {
	if t.client == nil {
		return nil
	}
	return t.client.Del(ctx, key(sessionID)).Err()
}
