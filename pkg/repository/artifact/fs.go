package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// FS stores artifacts as files in a directory
type FS struct {
	dir string
}

var _ interfaces.ArtifactStore = &FS{}

// NewFS creates the directory if needed
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create artifact directory", goerr.V("dir", dir))
	}
	return &FS{dir: dir}, nil
}

func (s *FS) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", goerr.Wrap(model.ErrInvalidInput, "invalid artifact name", goerr.V("name", name))
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

// Save writes data atomically through a temporary file
func (s *FS) Save(ctx context.Context, name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create artifact directory", goerr.V("name", name))
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".artifact-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary artifact", goerr.V("name", name))
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to write artifact", goerr.V("name", name))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close artifact", goerr.V("name", name))
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return goerr.Wrap(err, "failed to move artifact into place", goerr.V("name", name))
	}
	return nil
}

func (s *FS) Load(ctx context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, goerr.Wrap(model.ErrNotFound, "artifact not found", goerr.V("name", name))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read artifact", goerr.V("name", name))
	}
	return data, nil
}
