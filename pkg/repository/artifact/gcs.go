package artifact

import (
	"context"
	"errors"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// GCS stores artifacts as objects under a bucket prefix
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ interfaces.ArtifactStore = &GCS{}

// NewGCS creates a store over gs://bucket/prefix
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCS) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, name))
}

func (s *GCS) Save(ctx context.Context, name string, data []byte) error {
	w := s.object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write artifact", goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to upload artifact", goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	return nil
}

func (s *GCS) Load(ctx context.Context, name string) ([]byte, error) {
	r, err := s.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, goerr.Wrap(model.ErrNotFound, "artifact not found", goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open artifact", goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read artifact", goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	return data, nil
}

func (s *GCS) Close() error {
	return s.client.Close()
}
