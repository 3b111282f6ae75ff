package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// AuditLog is an in-memory domain.AuditStore.
type AuditLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditLog returns an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Log appends an audit entry stamped with the current time.
func (a *AuditLog) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{
		ID:        int64(len(a.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

// List returns entries newest first.
func (a *AuditLog) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []domain.AuditEntry{}
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []domain.AuditEntry{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

var _ domain.AuditStore = (*AuditLog)(nil)
