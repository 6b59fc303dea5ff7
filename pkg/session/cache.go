package session

import (
	"context"
	"sync"
	"time"

	"github.com/dotsetgreg/jarvisctl/pkg/backend"
)

// BackendInfo is a cached snapshot of slow-moving backend facts: the
// model catalog and the knowledge base size. The heartbeat refreshes
// it in the background so status displays never block on the backend.
type BackendInfo struct {
	mu          sync.RWMutex
	models      backend.ModelList
	stats       backend.KnowledgeStats
	refreshedAt time.Time
}

func NewBackendInfo() *BackendInfo {
	return &BackendInfo{}
}

// Refresh pulls fresh facts. Either call failing leaves the previous
// snapshot in place.
func (b *BackendInfo) Refresh(ctx context.Context, client *backend.Client) error {
	models, err := client.Models(ctx)
	if err != nil {
		return err
	}
	stats, err := client.KnowledgeStats(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.models = models
	b.stats = stats
	b.refreshedAt = time.Now()
	b.mu.Unlock()
	return nil
}

func (b *BackendInfo) Models() backend.ModelList {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.models
}

func (b *BackendInfo) Stats() backend.KnowledgeStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

func (b *BackendInfo) RefreshedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refreshedAt
}
