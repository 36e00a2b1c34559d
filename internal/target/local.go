package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
)

// Local is a destination tree on the local filesystem.
type Local struct {
	root        string
	progress    bool
	progressOut io.Writer
}

// NewLocal creates a Local target rooted at the absolute form of root.
func NewLocal(root string, progress bool) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve destination %q: %w", root, err)
	}
	return &Local{root: abs, progress: progress, progressOut: os.Stderr}, nil
}

// SetProgressOutput redirects the copy progress bar, stderr by default.
func (l *Local) SetProgressOutput(w io.Writer) {
	l.progressOut = w
}

// Root returns the absolute destination root.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) Path(rel string) string {
	return filepath.Join(l.root, rel)
}

func (l *Local) Exists(ctx context.Context, rel string) (bool, error) {
	_, err := os.Stat(l.Path(rel))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	return os.Open(l.Path(rel))
}

// CopyDir copies srcDir to rel, creating missing parents of rel. Symlinks are
// followed; file modes and modification times are preserved.
func (l *Local) CopyDir(ctx context.Context, srcDir, rel string) (CopyStats, error) {
	var stats CopyStats
	dst := l.Path(rel)

	info, err := os.Stat(srcDir)
	if err != nil {
		return stats, err
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("copy %s: not a directory", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return stats, fmt.Errorf("create parent of %s: %w", dst, err)
	}
	// Mkdir, not MkdirAll: an existing destination must fail the copy.
	if err := os.Mkdir(dst, 0o755); err != nil {
		return stats, fmt.Errorf("create %s: %w", dst, err)
	}

	var bar *pb.ProgressBar
	if l.progress {
		total, err := treeSize(srcDir)
		if err != nil {
			return stats, err
		}
		bar = pb.New64(total).SetTemplate(pb.Full)
		bar.Set(pb.Bytes, true)
		bar.SetWriter(l.progressOut)
		bar.Start()
		defer bar.Finish()
	}

	if err := copyTree(ctx, srcDir, dst, bar, &stats); err != nil {
		return stats, err
	}
	return stats, copyMeta(dst, info)
}

func copyTree(ctx context.Context, src, dst string, bar *pb.ProgressBar, stats *CopyStats) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := os.Stat(srcPath)
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			if err := os.Mkdir(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyTree(ctx, srcPath, dstPath, bar, stats); err != nil {
				return err
			}
			if err := copyMeta(dstPath, info); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			n, err := copyFile(srcPath, dstPath, info, bar)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Size += n
		}
	}
	return nil
}

func copyFile(src, dst string, info fs.FileInfo, bar *pb.ProgressBar) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	var w io.Writer = out
	if bar != nil {
		w = bar.NewProxyWriter(out)
	}

	n, err := io.Copy(w, in)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	return n, copyMeta(dst, info)
}

func copyMeta(path string, info fs.FileInfo) error {
	if err := os.Chmod(path, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(path, info.ModTime(), info.ModTime())
}

func treeSize(root string) (int64, error) {
	// WalkDir does not descend into a symlinked root.
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return 0, err
	}
	var total int64
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
