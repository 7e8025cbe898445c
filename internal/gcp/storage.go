package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectNotFound is returned when a GCS URI resolves to nothing.
var ErrObjectNotFound = errors.New("gcs object not found")

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ParseGCSURI splits a gs://bucket/object URI into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI %q: must start with gs://", uri)
	}
	rest := strings.TrimPrefix(uri, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI %q: expected gs://bucket/object", uri)
	}
	return bucket, object, nil
}

// UploadToGCS streams r into the named object and returns its gs:// URI.
// The write carries a DoesNotExist precondition, so a re-delivered upload of
// the same object keeps the existing content and still returns its URI.
func UploadToGCS(ctx context.Context, client *storage.Client, bucket, object string, r io.Reader, contentType string) (string, error) {
	uri := fmt.Sprintf("gs://%s/%s", bucket, object)
	writer := client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("SKIPPING: GCS object already exists.", "object", object)
			return uri, nil
		}
		return "", fmt.Errorf("failed to write to GCS object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		// The precondition may only surface when the write is finalized.
		if isPreconditionFailed(err) {
			slog.Info("SKIPPING: GCS object already exists.", "object", object)
			return uri, nil
		}
		return "", fmt.Errorf("failed to finalize GCS write for %s: %w", object, err)
	}
	return uri, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// DownloadFromGCS reads the whole object behind a gs:// URI into memory.
// A missing object maps to ErrObjectNotFound.
func DownloadFromGCS(ctx context.Context, client *storage.Client, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", gcsURI, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open reader for %s: %w", gcsURI, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", gcsURI, err)
	}
	return data, nil
}

// Uploader stores uploaded documents in a fixed bucket.
type Uploader struct {
	Client *storage.Client
	Bucket string
}

// Upload stores the stream under the given object name and returns its URI.
func (u *Uploader) Upload(ctx context.Context, object string, r io.Reader, contentType string) (string, error) {
	return UploadToGCS(ctx, u.Client, u.Bucket, object, r, contentType)
}
