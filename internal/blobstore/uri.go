// Package blobstore stores uploaded originals and reads them back by URI.
// URIs have the form scheme://bucket/key and are persisted verbatim as a
// document's source location.
package blobstore

import (
	"fmt"
	"strings"

	"github.com/jmobrien1/mdraft2/internal/model"
)

// URI schemes produced by the backends.
const (
	SchemeGCS = "gs"
	SchemeS3  = "s3"
)

// FormatURI joins the parts of a blob URI.
func FormatURI(scheme, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, bucket, key)
}

// ParseURI splits a blob URI into scheme, bucket and key.
func ParseURI(uri string) (scheme, bucket, key string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return "", "", "", model.E(model.ErrStorage, "parse uri", fmt.Errorf("%q has no scheme", uri))
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", "", model.E(model.ErrStorage, "parse uri", fmt.Errorf("%q needs a bucket and a key", uri))
	}
	return scheme, bucket, key, nil
}

// objectKey resolves uri to a key inside the expected scheme and bucket.
func objectKey(uri, scheme, bucket string) (string, error) {
	gotScheme, gotBucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if gotScheme != scheme || gotBucket != bucket {
		return "", model.E(model.ErrStorage, "resolve uri",
			fmt.Errorf("%q is not in %s", uri, FormatURI(scheme, bucket, "")))
	}
	return key, nil
}

func requireBucket(op, bucket string) error {
	if bucket == "" {
		return model.E(model.ErrConfiguration, op, fmt.Errorf("bucket name is not configured"))
	}
	return nil
}
