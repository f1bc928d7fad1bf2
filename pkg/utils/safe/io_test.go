package safe_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/secmon-lab/mnemosyne/pkg/utils/safe"
)

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestClose(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), logging.New(&buf, slog.LevelInfo, logging.FormatJSON))

	t.Run("closes quietly", func(t *testing.T) {
		c := &closer{}
		safe.Close(ctx, c, "vector store")
		gt.B(t, c.closed).True()
		gt.S(t, buf.String()).Equal("")
	})

	t.Run("logs a failure with the resource", func(t *testing.T) {
		c := &closer{err: errors.New("connection reset")}
		safe.Close(ctx, c, "vector store")
		gt.S(t, buf.String()).Contains("failed to close vector store")
		gt.S(t, buf.String()).Contains(`"resource":"vector store"`)
		gt.S(t, buf.String()).Contains("connection reset")
	})

	t.Run("nil is ignored", func(t *testing.T) {
		safe.Close(ctx, nil, "export file")
	})
}
