// Package repository defines data access interfaces and sqlite-backed
// implementations for the proxy's durable state: finalized request logs,
// runtime-registered backends, and Open Responses conversation state.
package repository

import (
	"context"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// RequestLogRepository persists finalized request log entries.
type RequestLogRepository interface {
	Insert(ctx context.Context, entry *models.RequestLogEntry) error
	GetByRequestID(ctx context.Context, requestID string) (*models.RequestLog, error)
	List(ctx context.Context, limit, offset int) ([]*models.RequestLog, error)
}

// BackendRepository persists the runtime-registered (non-default) layer
// of the backend registry, so admin registrations survive a restart.
type BackendRepository interface {
	List(ctx context.Context) ([]*models.Backend, error)
	Upsert(ctx context.Context, b *models.Backend) error
	Delete(ctx context.Context, name string) error
}

// ResponseStateRepository is the durable tier backing the in-memory LRU
// in internal/statestore: it never evicts, so history() can always walk
// a previous_response_id chain regardless of LRU pressure.
type ResponseStateRepository interface {
	Get(ctx context.Context, id string) (*models.ResponseStateRecord, error)
	Put(ctx context.Context, rec *models.ResponseStateRecord) error
}
