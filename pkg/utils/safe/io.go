package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

// Close releases a resource at the end of a command, such as a vector store,
// an export file or a Cloud Storage client. There is nobody left to return
// the error to, so a failure is logged with resource as its label.
func Close(ctx context.Context, closer io.Closer, resource string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("failed to close "+resource,
			slog.String("resource", resource),
			slog.Any("error", err),
		)
	}
}
