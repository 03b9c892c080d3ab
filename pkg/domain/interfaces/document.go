package interfaces

import (
	"context"

	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// DocumentRepository persists indexed documents so a vector index can be restored
type DocumentRepository interface {
	// Create stores a document under its ID. It returns model.ErrConflict when the ID is
	// already taken, so several writers sharing a repository never overwrite each other.
	Create(ctx context.Context, doc *model.Document) error
	// List returns every document ordered by ascending ID
	List(ctx context.Context) ([]*model.Document, error)
	// DeleteAll removes every document
	DeleteAll(ctx context.Context) error
	Close() error
}

// ArtifactStore stores serialized model artifacts by name
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) error
	// Load returns model.ErrNotFound when no artifact has the name
	Load(ctx context.Context, name string) ([]byte, error)
}

// TranslationCache memoizes translations by key
type TranslationCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}
