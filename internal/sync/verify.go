package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chmdznr/music-dir-sync/pkg/models"
	"golang.org/x/crypto/blake2b"
)

// DefaultHashLimit is the prefix length hashed per file by default. Files
// that differ only after the first 64 KiB compare equal under it.
const DefaultHashLimit = 64 * 1024

const (
	HashSHA256  = "sha256"
	HashBlake2b = "blake2b"
)

// NewHash returns a fresh hash for the named algorithm. An empty name
// selects sha256.
func NewHash(name string) (hash.Hash, error) {
	switch strings.ToLower(name) {
	case "", HashSHA256:
		return sha256.New(), nil
	case HashBlake2b:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", name)
	}
}

// Fingerprint hashes the first limit bytes of r, or all of r when limit is 0.
func Fingerprint(r io.Reader, h hash.Hash, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Verify compares every regular file below srcDir with its counterpart at
// rel in the destination. Mismatches and missing destination files are
// logged and recorded; the walk continues past them. Other errors abort.
func (s *Syncer) Verify(ctx context.Context, srcDir, rel string, report *models.Report) error {
	// WalkDir does not descend into a symlinked root.
	root, err := filepath.EvalSymlinks(srcDir)
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		sub, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		path = filepath.Join(srcDir, sub)
		destRel := filepath.Join(rel, sub)
		destPath := s.dest.Path(destRel)

		report.Stats.CheckedFiles++
		same, err := s.compare(ctx, path, destRel)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			s.logger.Printf("check failed: from_path=%s to_path=%s error=%v", path, destPath, err)
			report.Add(models.Event{Kind: models.EventCheckFailed, SourcePath: path, TargetPath: destPath, Message: err.Error()})
		case err != nil:
			return err
		case !same:
			s.logger.Printf("check failed: from_path=%s to_path=%s", path, destPath)
			report.Add(models.Event{Kind: models.EventCheckFailed, SourcePath: path, TargetPath: destPath})
		}
		return nil
	})
}

func (s *Syncer) compare(ctx context.Context, srcPath, destRel string) (bool, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return false, err
	}
	defer src.Close()

	srcSum, err := s.fingerprint(src)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", srcPath, err)
	}

	dst, err := s.dest.Open(ctx, destRel)
	if err != nil {
		return false, err
	}
	defer dst.Close()

	dstSum, err := s.fingerprint(dst)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", s.dest.Path(destRel), err)
	}

	return bytes.Equal(srcSum, dstSum), nil
}

func (s *Syncer) fingerprint(r io.Reader) ([]byte, error) {
	h, err := NewHash(s.config.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	return Fingerprint(r, h, s.config.HashLimit)
}
