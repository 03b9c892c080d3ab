package config

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/repository/artifact"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Artifact holds the location of trained model artifacts: a local directory or gs://bucket/prefix
type Artifact struct {
	location string
}

// Flags returns CLI flags for artifact storage
func (a *Artifact) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "artifact",
			Aliases:     []string{"a"},
			Usage:       "Model artifact location (directory path or gs://bucket/prefix)",
			Value:       "./models",
			Sources:     cli.EnvVars("VAIDYA_ARTIFACT"),
			Destination: &a.location,
		},
	}
}

// LogAttrs returns log attributes for the artifact configuration
func (a *Artifact) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.String("location", a.location)}
}

// Configure opens the artifact store. The closer releases cloud clients.
func (a *Artifact) Configure(ctx context.Context) (interfaces.ArtifactStore, func(), error) {
	if a.location == "" {
		return nil, nil, goerr.New("artifact location is required")
	}

	if rest, ok := strings.CutPrefix(a.location, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, nil, goerr.New("artifact bucket is required", goerr.V("location", a.location))
		}
		store, err := artifact.NewGCS(ctx, bucket, prefix)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to open GCS artifact store")
		}
		logging.Default().Info("Using GCS artifact store", "bucket", bucket, "prefix", prefix)
		return store, func() { _ = store.Close() }, nil
	}

	store, err := artifact.NewFS(a.location)
	if err != nil {
		return nil, nil, err
	}
	logging.Default().Info("Using local artifact store", "dir", a.location)
	return store, func() {}, nil
}
