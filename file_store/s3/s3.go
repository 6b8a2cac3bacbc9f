// A file store backed by an S3 compatible object store.
package s3

import (
	"context"
	"io"
	"strings"

	"github.com/go-errors/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/file_store/api"
)

type S3FileStore struct {
	client *minio.Client
	bucket string
}

func NewS3FileStore(config_obj *config.Config) (*S3FileStore, error) {
	s3_config := config_obj.FileStore.S3
	if s3_config == nil {
		return nil, errors.New("no s3 configuration")
	}

	client, err := minio.New(s3_config.Endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			s3_config.AccessKeyID, s3_config.SecretAccessKey, ""),
		Secure: !s3_config.NoSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &S3FileStore{
		client: client,
		bucket: s3_config.Bucket,
	}, nil
}

func objectName(sha256_digest string) string {
	return strings.Join(api.ShardedComponents(sha256_digest), "/")
}

func (self *S3FileStore) Put(
	sha256_digest string, reader io.Reader) error {

	if self.Exists(sha256_digest) {
		return nil
	}

	_, err := self.client.PutObject(context.Background(),
		self.bucket, objectName(sha256_digest), reader, -1,
		minio.PutObjectOptions{})
	if err != nil {
		return errors.Wrap(err, 0)
	}

	return nil
}

func (self *S3FileStore) Open(
	sha256_digest string) (api.FileReader, error) {

	obj, err := self.client.GetObject(context.Background(),
		self.bucket, objectName(sha256_digest),
		minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	// GetObject is lazy - surface missing objects here instead of on
	// the first read.
	_, err = obj.Stat()
	if err != nil {
		obj.Close()
		return nil, errors.Wrap(err, 0)
	}

	return obj, nil
}

func (self *S3FileStore) Size(sha256_digest string) (int64, error) {
	info, err := self.client.StatObject(context.Background(),
		self.bucket, objectName(sha256_digest),
		minio.StatObjectOptions{})
	if err != nil {
		return 0, errors.Wrap(err, 0)
	}

	return info.Size, nil
}

func (self *S3FileStore) Exists(sha256_digest string) bool {
	_, err := self.client.StatObject(context.Background(),
		self.bucket, objectName(sha256_digest),
		minio.StatObjectOptions{})
	return err == nil
}

func (self *S3FileStore) Delete(sha256_digest string) error {
	err := self.client.RemoveObject(context.Background(),
		self.bucket, objectName(sha256_digest),
		minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrap(err, 0)
	}

	return nil
}
