package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

func TestFromReturnsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON)

	ctx := logging.With(context.Background(), logger)
	logging.From(ctx).Info("stored memory", "session_id", "s1")

	gt.String(t, buf.String()).Contains("stored memory")
	gt.String(t, buf.String()).Contains(`"session_id":"s1"`)
}

func TestFromFallsBackToDefault(t *testing.T) {
	gt.Value(t, logging.From(context.Background())).Equal(logging.Default())
}

func TestNewRedactsSecrets(t *testing.T) {
	type credentials struct {
		APIKey string
		User   string
	}

	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON)
	logger.Info("configured", "creds", credentials{APIKey: "very-secret-value", User: "advisor"})

	gt.String(t, buf.String()).NotContains("very-secret-value")
	gt.String(t, buf.String()).Contains("advisor")
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelWarn, logging.FormatJSON)
	logger.Info("hidden")
	logger.Warn("shown")

	gt.String(t, buf.String()).NotContains("hidden")
	gt.String(t, buf.String()).Contains("shown")
}
