package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Object describes a stored report.
type Object struct {
	Bucket string
	Name   string
	Size   int64
}

// URI returns the gs:// address of the object.
func (o Object) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ObjectAttrs are applied to newly written objects.
type ObjectAttrs struct {
	ContentType string
	Metadata    map[string]string
}

type objectOpener interface {
	NewWriter(ctx context.Context, bucket, object string, attrs ObjectAttrs) io.WriteCloser
}

// Writer stores generated reports in a single Cloud Storage bucket.
type Writer struct {
	opener objectOpener
	bucket string
}

// NewWriter constructs a Writer backed by the Cloud Storage client.
func NewWriter(client *gcs.Client, bucket string) (*Writer, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return newWriterWith(gcsOpener{client: client}, bucket)
}

func newWriterWith(opener objectOpener, bucket string) (*Writer, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage writer: bucket is required")
	}
	return &Writer{opener: opener, bucket: bucket}, nil
}

// Put writes body to object. The object is only committed when the whole body was written.
func (w *Writer) Put(ctx context.Context, object string, body io.Reader, attrs ObjectAttrs) (Object, error) {
	if w == nil || w.opener == nil {
		return Object{}, errors.New("storage writer: not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return Object{}, errors.New("storage writer: object name is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ow := w.opener.NewWriter(ctx, w.bucket, object, attrs)
	n, err := io.Copy(ow, body)
	if err != nil {
		// cancelling the context aborts the upload so no partial object is created
		cancel()
		_ = ow.Close()
		return Object{}, fmt.Errorf("storage writer: write %s: %w", object, err)
	}
	if err := ow.Close(); err != nil {
		return Object{}, fmt.Errorf("storage writer: commit %s: %w", object, err)
	}
	return Object{Bucket: w.bucket, Name: object, Size: n}, nil
}

type gcsOpener struct {
	client *gcs.Client
}

func (g gcsOpener) NewWriter(ctx context.Context, bucket, object string, attrs ObjectAttrs) io.WriteCloser {
	ow := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	ow.ContentType = attrs.ContentType
	ow.Metadata = attrs.Metadata
	return ow
}
