package cli

import (
	"context"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/utils/safe"
)

const gcsScheme = "gs://"

// parseGCSPath splits gs://bucket/object. ok is false for anything that is
// not a gs:// URL.
func parseGCSPath(path string) (bucket, object string, ok bool, err error) {
	if !strings.HasPrefix(path, gcsScheme) {
		return "", "", false, nil
	}

	bucket, object, found := strings.Cut(strings.TrimPrefix(path, gcsScheme), "/")
	if !found || bucket == "" || object == "" {
		return "", "", true, goerr.New("gs:// path must name a bucket and an object", goerr.V("path", path))
	}
	return bucket, object, true, nil
}

// writeExport writes data to a local file or, for gs:// paths, to Cloud Storage
func writeExport(ctx context.Context, path string, data []byte) error {
	bucket, object, isGCS, err := parseGCSPath(path)
	if err != nil {
		return err
	}
	if isGCS {
		return writeGCS(ctx, bucket, object, data)
	}

	// #nosec G304 - path is provided by CLI argument
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return goerr.Wrap(err, "failed to open export file", goerr.V("path", path))
	}
	defer safe.Close(ctx, f, "export file")

	if _, err := f.Write(data); err != nil {
		return goerr.Wrap(err, "failed to write export file", goerr.V("path", path))
	}
	return nil
}

func writeGCS(ctx context.Context, bucket, object string, data []byte) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to create Cloud Storage client")
	}
	defer safe.Close(ctx, client, "Cloud Storage client")

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		safe.Close(ctx, w, "Cloud Storage writer")
		return goerr.Wrap(err, "failed to upload export",
			goerr.V("bucket", bucket),
			goerr.V("object", object))
	}
	// The object is committed on Close
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize export upload",
			goerr.V("bucket", bucket),
			goerr.V("object", object))
	}
	return nil
}
