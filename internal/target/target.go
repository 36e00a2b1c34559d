// Package target implements the destinations a source tree can be synced to.
//
// A destination is addressed by paths relative to its root. Two backends are
// provided: a local directory tree and a MinIO (S3 compatible) bucket prefix.
package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned by New for destination URLs it cannot serve.
var ErrUnsupportedScheme = errors.New("unsupported destination scheme")

// CopyStats reports what a CopyDir call transferred.
type CopyStats struct {
	Files int64
	Size  int64
}

// Target is a destination tree addressed by slash or OS separated relative paths.
type Target interface {
	// Exists reports whether a directory or file is present at rel.
	Exists(ctx context.Context, rel string) (bool, error)
	// CopyDir copies srcDir recursively to rel. It fails with an error
	// wrapping fs.ErrExist if rel is already present.
	CopyDir(ctx context.Context, srcDir, rel string) (CopyStats, error)
	// Open opens the file at rel. A missing file yields an error wrapping
	// fs.ErrNotExist.
	Open(ctx context.Context, rel string) (io.ReadCloser, error)
	// Path returns the display form of rel used in status lines.
	Path(rel string) string
}

// Options configures the destination backends.
type Options struct {
	// Progress shows a byte progress bar on stderr for every copy.
	Progress bool

	// MinIO connection settings, used for s3:// destinations.
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Insecure  bool
}

// Destination is a parsed destination argument.
type Destination struct {
	Scheme string // "" for a local path
	Bucket string
	Prefix string
	Path   string
}

// ParseDestination splits a destination argument into its parts. Plain paths
// are local; s3:// and minio:// URLs name a bucket and an optional prefix.
func ParseDestination(raw string) (Destination, error) {
	if !strings.Contains(raw, "://") {
		return Destination{Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("parse destination %q: %w", raw, err)
	}

	switch u.Scheme {
	case "s3", "minio":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("destination %q: missing bucket name", raw)
		}
		return Destination{
			Scheme: u.Scheme,
			Bucket: u.Host,
			Prefix: strings.Trim(u.Path, "/"),
		}, nil
	default:
		return Destination{}, fmt.Errorf("destination %q: %w", raw, ErrUnsupportedScheme)
	}
}

// New builds the Target named by raw.
func New(raw string, opts Options) (Target, error) {
	dest, err := ParseDestination(raw)
	if err != nil {
		return nil, err
	}
	if dest.Scheme == "" {
		return NewLocal(dest.Path, opts.Progress)
	}
	return NewMinIO(dest.Bucket, dest.Prefix, opts)
}
