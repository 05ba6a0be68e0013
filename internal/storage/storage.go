package storage

import "context"

// Service uploads user images to remote object storage and returns a
// publicly resolvable URL for the stored object.
type Service interface {
	UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error)
}
