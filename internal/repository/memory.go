package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmobrien1/mdraft2/internal/model"
)

// Memory keeps documents in a map guarded by an RWMutex. It backs local runs
// and tests; every value crossing the boundary is a deep copy.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
	now  func() time.Time
}

// NewMemory constructs an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*model.Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new record. Reusing an id is a conflict.
func (m *Memory) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return model.E(model.ErrConflict, "create document", fmt.Errorf("id %s already exists", doc.ID))
	}
	now := m.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.docs[doc.ID] = doc.Clone()
	return nil
}

// Get returns a copy of the stored record.
func (m *Memory) Get(_ context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, model.E(model.ErrNotFound, "get document", fmt.Errorf("id %s", id))
	}
	return doc.Clone(), nil
}

// Save replaces the mutable fields of an existing record. Filename, source
// location and creation time stay as created.
func (m *Memory) Save(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.docs[doc.ID]
	if !ok {
		return model.E(model.ErrNotFound, "save document", fmt.Errorf("id %s", doc.ID))
	}
	src := doc.Clone()
	next := stored.Clone()
	next.Status = src.Status
	next.OutputText = src.OutputText
	next.Embedding = src.Embedding
	next.UpdatedAt = m.now()
	m.docs[doc.ID] = next

	doc.OriginalFilename = stored.OriginalFilename
	doc.SourceLocation = stored.SourceLocation
	doc.CreatedAt = stored.CreatedAt
	doc.UpdatedAt = next.UpdatedAt
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Len reports how many documents are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
