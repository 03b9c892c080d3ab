package safe

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Close closes closer and logs a failure. Nil closers are ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Warn("Failed to close",
			slog.String("resource", fmt.Sprintf("%T", closer)),
			slog.Any("error", err),
		)
	}
}

// Write writes data to w and logs a failure or a short write. Nil writers are ignored.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	n, err := w.Write(data)
	if err != nil {
		logging.From(ctx).Warn("Failed to write", slog.Any("error", err), slog.Int("written", n), slog.Int("size", len(data)))
	}
}
