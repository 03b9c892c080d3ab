package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// Memory is an in-process DocumentRepository. Documents are copied on the way in and out.
type Memory struct {
	mu   sync.RWMutex
	docs map[model.DocumentID]*model.Document
}

var _ interfaces.DocumentRepository = &Memory{}

func New() *Memory {
	return &Memory{
		docs: make(map[model.DocumentID]*model.Document),
	}
}

func (m *Memory) Create(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[doc.ID]; ok {
		return goerr.Wrap(model.ErrConflict, "document already exists", goerr.V("document_id", doc.ID))
	}
	m.docs[doc.ID] = doc.Copy()
	return nil
}

func (m *Memory) List(ctx context.Context) ([]*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		result = append(result, doc.Copy())
	}
	slices.SortFunc(result, func(a, b *model.Document) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (m *Memory) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = make(map[model.DocumentID]*model.Document)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
