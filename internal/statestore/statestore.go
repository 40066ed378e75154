// Package statestore holds the durable-and-hot state needed to resume an
// Open Responses conversation: each turn's materialized response object
// plus the input that produced it, addressable by response id and
// chainable via previous_response_id.
package statestore

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/internal/repository"
)

const (
	// DefaultCapacity is the in-memory tier's fixed entry cap.
	DefaultCapacity = 1000
	// DefaultMaxHistoryDepth bounds how many turns History walks back.
	DefaultMaxHistoryDepth = 100
)

// Turn is one assembled step of a response chain: the input items the
// caller supplied plus the output items the model produced, in
// chronological order.
type Turn struct {
	ResponseID string
	InputItems []json.RawMessage
	Output     []models.OutputItem
}

// Store is an LRU-capped in-memory map backed by a durable repository.
// Reads check memory first; writes update memory immediately and enqueue
// a detached persistence task, matching the recorder's own
// write-now-persist-later split.
type Store struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[string]*list.Element

	repo   repository.ResponseStateRepository
	logger *zap.Logger

	pending sync.WaitGroup
}

// New creates a Store with the given capacity (DefaultCapacity if <= 0).
// repo may be nil, in which case the durable tier is a no-op and History
// only sees what's still resident in memory.
func New(capacity int, repo repository.ResponseStateRepository, logger *zap.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		capacity: capacity,
		ll:       list.New(),
		index:    map[string]*list.Element{},
		repo:     repo,
		logger:   logger,
	}
}

// Put records a turn's materialized response and normalized input items,
// refreshes its LRU recency, evicts the oldest entry if over capacity,
// and enqueues a background persistence task.
func (s *Store) Put(resp *models.ResponseObject, inputItems []json.RawMessage) {
	rec := &models.ResponseStateRecord{
		ID:                 resp.ID,
		PreviousResponseID: resp.PreviousResponseID,
		Model:              resp.Model,
		Status:             resp.Status,
		InputItems:         inputItems,
		Response:           resp,
		CreatedAt:          resp.CreatedAt,
	}

	s.mu.Lock()
	if el, ok := s.index[rec.ID]; ok {
		el.Value = rec
		s.ll.MoveToFront(el)
	} else {
		el := s.ll.PushFront(rec)
		s.index[rec.ID] = el
		if s.ll.Len() > s.capacity {
			oldest := s.ll.Back()
			if oldest != nil {
				s.ll.Remove(oldest)
				delete(s.index, oldest.Value.(*models.ResponseStateRecord).ID)
			}
		}
	}
	s.mu.Unlock()

	if s.repo == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.Put(context.Background(), rec); err != nil {
			s.logger.Error("failed to persist response state", zap.String("response_id", rec.ID), zap.Error(err))
		}
	}()
}

// Get returns the record for id, checking memory first and falling back
// to the durable tier, populating memory on a durable hit.
func (s *Store) Get(ctx context.Context, id string) (*models.ResponseStateRecord, error) {
	s.mu.Lock()
	if el, ok := s.index[id]; ok {
		s.ll.MoveToFront(el)
		rec := el.Value.(*models.ResponseStateRecord)
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	if s.repo == nil {
		return nil, nil
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}

	s.mu.Lock()
	el := s.ll.PushFront(rec)
	s.index[rec.ID] = el
	if s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		if oldest != nil {
			s.ll.Remove(oldest)
			delete(s.index, oldest.Value.(*models.ResponseStateRecord).ID)
		}
	}
	s.mu.Unlock()
	return rec, nil
}

// History walks back from id via previous_response_id, depth-bounded by
// maxDepth (DefaultMaxHistoryDepth if <= 0), and returns each visited
// turn's input_items+output_items assembled in chronological order
// (oldest first) — ready to prepend to a new request's input. A missing
// link breaks the chain early and is logged as a warning; hitting
// maxDepth without reaching the root is also logged.
func (s *Store) History(ctx context.Context, id string, maxDepth int) ([]Turn, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxHistoryDepth
	}

	var reversed []Turn
	cur := id
	for depth := 0; depth < maxDepth && cur != ""; depth++ {
		rec, err := s.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			s.logger.Warn("response state history chain broken: missing link", zap.String("response_id", cur))
			break
		}
		reversed = append(reversed, Turn{
			ResponseID: rec.ID,
			InputItems: rec.InputItems,
			Output:     rec.Response.Output,
		})
		if rec.PreviousResponseID == nil {
			cur = ""
			continue
		}
		cur = *rec.PreviousResponseID
		if depth == maxDepth-1 {
			s.logger.Warn("response state history truncated at max depth", zap.String("response_id", id), zap.Int("max_depth", maxDepth))
		}
	}

	out := make([]Turn, len(reversed))
	for i, t := range reversed {
		out[len(reversed)-1-i] = t
	}
	return out, nil
}

// Await blocks until all background persistence tasks this Store has
// scheduled have completed. Call during graceful shutdown.
func (s *Store) Await() {
	s.pending.Wait()
}
