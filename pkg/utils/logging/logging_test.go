package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

func TestFromFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.SetDefault(logger)

	logging.From(context.Background()).Info("hello")
	gt.String(t, buf.String()).Contains("hello")
}

func TestWithOverridesDefault(t *testing.T) {
	var def, scoped bytes.Buffer
	logging.SetDefault(slog.New(slog.NewJSONHandler(&def, nil)))

	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&scoped, nil)))
	logging.From(ctx).Info("scoped message")

	gt.String(t, scoped.String()).Contains("scoped message")
	gt.Number(t, def.Len()).Equal(0)
}
