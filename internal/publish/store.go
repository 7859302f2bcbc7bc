// Package publish uploads the output tree to an object store and removes
// remote objects that no longer have a local counterpart.
package publish

import "context"

// Object describes one remote object.
type Object struct {
	Key string
	// ETag is the unquoted entity tag. For single-part uploads it is the hex
	// MD5 of the content.
	ETag string
	Size int64
}

// PutInput is one upload.
type PutInput struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
	// ContentMD5 is the base64 MD5 digest of Body.
	ContentMD5 string
}

// ObjectStore is the remote side of a publish.
type ObjectStore interface {
	Put(ctx context.Context, in PutInput) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, keys []string) error
}
