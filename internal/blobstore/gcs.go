package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/jmobrien1/mdraft2/internal/model"
)

// GCS stores originals in a Google Cloud Storage bucket. Objects are written
// once; uploading to an existing key returns the existing URI.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS wraps an existing storage client.
func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

// Put writes r under key with a does-not-exist precondition.
func (g *GCS) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	if err := requireBucket("put object", g.bucket); err != nil {
		return "", err
	}
	uri := FormatURI(SchemeGCS, g.bucket, key)
	obj := g.client.Bucket(g.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			return uri, nil
		}
		return "", model.E(model.ErrStorage, "put object", err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			return uri, nil
		}
		return "", model.E(model.ErrStorage, "put object", err)
	}
	return uri, nil
}

// Get downloads the object behind uri.
func (g *GCS) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := requireBucket("get object", g.bucket); err != nil {
		return nil, err
	}
	key, err := objectKey(uri, SchemeGCS, g.bucket)
	if err != nil {
		return nil, err
	}
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, model.E(model.ErrStorage, "get object", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, model.E(model.ErrStorage, "read object", err)
	}
	return data, nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
