package target

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIO is a destination tree stored as objects under a bucket prefix.
// Directories have no objects of their own; one exists as soon as any
// object lives below it.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO creates a MinIO target for bucket/prefix.
func NewMinIO(bucket, prefix string, opts Options) (*MinIO, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("minio destination s3://%s: endpoint is required", bucket)
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       !opts.Insecure,
		Transport:    tr,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinIO{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (m *MinIO) key(rel string) string {
	return strings.TrimPrefix(path.Join(m.prefix, filepath.ToSlash(rel)), "/")
}

func (m *MinIO) Path(rel string) string {
	return "s3://" + m.bucket + "/" + m.key(rel)
}

func (m *MinIO) Exists(ctx context.Context, rel string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := m.key(rel)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    key + "/",
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return false, fmt.Errorf("list %s: %w", m.Path(rel), obj.Err)
		}
		return true, nil
	}

	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", m.Path(rel), err)
}

func (m *MinIO) CopyDir(ctx context.Context, srcDir, rel string) (CopyStats, error) {
	var stats CopyStats

	exists, err := m.Exists(ctx, rel)
	if err != nil {
		return stats, err
	}
	if exists {
		return stats, fmt.Errorf("create %s: %w", m.Path(rel), fs.ErrExist)
	}

	root, err := filepath.EvalSymlinks(srcDir)
	if err != nil {
		return stats, err
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		sub, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := m.key(filepath.Join(rel, sub))

		objInfo, err := m.client.FPutObject(ctx, m.bucket, key, p, minio.PutObjectOptions{
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
		})
		if err != nil {
			if minioErr, ok := err.(minio.ErrorResponse); ok {
				return fmt.Errorf("upload %s to %s: %s: %s", p, key, minioErr.Code, minioErr.Message)
			}
			return fmt.Errorf("upload %s to %s: %w", p, key, err)
		}
		if objInfo.Size != info.Size() {
			return fmt.Errorf("upload %s: size mismatch: expected %d bytes, stored %d", p, info.Size(), objInfo.Size)
		}

		stats.Files++
		stats.Size += objInfo.Size
		return nil
	})
	return stats, err
}

func (m *MinIO) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.key(rel), minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapErr(rel, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, m.mapErr(rel, err)
	}
	return obj, nil
}

func (m *MinIO) mapErr(rel string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("open %s: %w", m.Path(rel), fs.ErrNotExist)
	}
	return fmt.Errorf("open %s: %w", m.Path(rel), err)
}
