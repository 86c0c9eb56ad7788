package artifactcache

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/errs"
)

// S3Remote is the project-configurable remote cache endpoint, implemented
// against any S3-compatible object store via minio-go. The scheduler's
// PULL/PUSH queues depend on it through the Remote interface only.
type S3Remote struct {
	client *minio.Client
	bucket string
}

// NewS3Remote dials an S3-compatible endpoint for artifact push/pull.
func NewS3Remote(endpoint, accessKey, secretKey, bucket string, useTLS bool) (*S3Remote, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, errs.Cache("remote-connect", err)
	}
	return &S3Remote{client: client, bucket: bucket}, nil
}

func (r *S3Remote) objectName(key cachekey.Key) string {
	return fmt.Sprintf("artifacts/%s.tar", key)
}

// Pull downloads and commits key into store if the remote has it. Returns
// false, nil (not an error) when the remote simply doesn't have the key:
// a miss is an ordinary outcome the pull queue moves past, not a failure.
func (r *S3Remote) Pull(ctx context.Context, key cachekey.Key, store Store) (bool, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, r.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return false, nil
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return false, nil // object does not exist remotely
	}

	dir, err := untarToTemp(obj)
	if err != nil {
		return false, errs.Cache("remote-pull", err)
	}
	if err := store.Commit(key, dir); err != nil {
		return false, err
	}
	return true, nil
}

// Push uploads the local artifact for key, if present, to the remote.
func (r *S3Remote) Push(ctx context.Context, key cachekey.Key, store Store) (bool, error) {
	if !store.Contains(key) {
		return false, nil
	}
	dir, err := store.Extract(key)
	if err != nil {
		return false, err
	}

	pr := tarDirectoryAsReader(ctx, dir)
	defer pr.Close()

	_, err = r.client.PutObject(ctx, r.bucket, r.objectName(key), pr, -1, minio.PutObjectOptions{
		ContentType: "application/x-tar",
	})
	if err != nil {
		return false, errs.Cache("remote-push", err)
	}
	return true, nil
}
