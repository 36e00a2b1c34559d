// Package sync mirrors a music library tree into a destination, one
// directory level at a time.
//
// At every level a source directory whose counterpart is missing from the
// destination is copied as a whole. A directory that already exists is
// descended into until the configured depth is reached, where it is skipped.
// With the default depth of 2 the levels are artist and album directories.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/chmdznr/music-dir-sync/internal/target"
	"github.com/chmdznr/music-dir-sync/pkg/models"
)

// Logger receives one status line per decision, copy and failed check.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Confirmer is asked before each copy when the syncer executes copies.
// Declined directories are neither copied nor verified.
type Confirmer interface {
	Confirm(from, to string) (bool, error)
}

// SyncerConfig holds configuration for the syncer
type SyncerConfig struct {
	// Execute performs copies; when false only the decisions are reported.
	Execute bool
	// Check verifies copied and skipped directories against the source.
	Check bool
	// Depth is the number of directory levels below the source root that
	// are compared; 2 means artist and album directories.
	Depth int
	// HashAlgorithm is "sha256" or "blake2b".
	HashAlgorithm string
	// HashLimit is the number of leading bytes hashed per file. Zero hashes
	// whole files.
	HashLimit int64
}

// DefaultSyncerConfig returns default syncer configuration
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		Execute:       false,
		Check:         true,
		Depth:         2,
		HashAlgorithm: HashSHA256,
		HashLimit:     DefaultHashLimit,
	}
}

// Syncer handles directory synchronization operations
type Syncer struct {
	source  string
	dest    target.Target
	config  SyncerConfig
	logger  Logger
	confirm Confirmer
}

// NewSyncer creates a new syncer instance. The source root is resolved to an
// absolute path. A nil config selects DefaultSyncerConfig and a nil logger
// discards status lines.
func NewSyncer(source string, dest target.Target, config *SyncerConfig, logger Logger) (*Syncer, error) {
	if config == nil {
		defaultConfig := DefaultSyncerConfig()
		config = &defaultConfig
	}
	if config.Depth < 1 {
		return nil, fmt.Errorf("invalid depth %d: must be at least 1", config.Depth)
	}
	if config.HashLimit < 0 {
		return nil, fmt.Errorf("invalid hash limit %d", config.HashLimit)
	}
	if _, err := NewHash(config.HashAlgorithm); err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, errors.New("destination is required")
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source %q: %w", source, err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Syncer{
		source: abs,
		dest:   dest,
		config: *config,
		logger: logger,
	}, nil
}

// SetConfirmer installs c to be consulted before every executed copy.
func (s *Syncer) SetConfirmer(c Confirmer) {
	s.confirm = c
}

// Source returns the absolute source root.
func (s *Syncer) Source() string {
	return s.source
}

// Run walks the source tree and applies the copy policy. It stops at the
// first copy or I/O error; failed checks are reported and do not stop it.
func (s *Syncer) Run(ctx context.Context) (*models.Report, error) {
	report := &models.Report{}
	if err := s.walk(ctx, "", 0, report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Syncer) walk(ctx context.Context, rel string, level int, report *models.Report) error {
	entries, err := os.ReadDir(filepath.Join(s.source, rel))
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		childRel := filepath.Join(rel, entry.Name())
		srcPath := filepath.Join(s.source, childRel)

		isDir, err := isDirectory(srcPath)
		if err != nil {
			return err
		}
		if !isDir {
			continue
		}

		exists, err := s.dest.Exists(ctx, childRel)
		if err != nil {
			return err
		}

		switch {
		case !exists:
			mode := models.LevelMode(level)
			s.logger.Printf("sync: target=%s mode=%s", srcPath, mode)
			report.Add(models.Event{Kind: models.EventSync, Mode: mode, SourcePath: srcPath, TargetPath: s.dest.Path(childRel)})
			if err := s.copyDir(ctx, srcPath, childRel, mode, report); err != nil {
				return err
			}
		case level+1 < s.config.Depth:
			if err := s.walk(ctx, childRel, level+1, report); err != nil {
				return err
			}
		default:
			s.logger.Printf("sync: target=%s mode=%s", srcPath, models.ModeSkipped)
			report.Add(models.Event{Kind: models.EventSync, Mode: models.ModeSkipped, SourcePath: srcPath, TargetPath: s.dest.Path(childRel)})
			if s.config.Check {
				if err := s.Verify(ctx, srcPath, childRel, report); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Syncer) copyDir(ctx context.Context, srcPath, rel string, mode models.Mode, report *models.Report) error {
	dstPath := s.dest.Path(rel)

	if s.config.Execute && s.confirm != nil {
		ok, err := s.confirm.Confirm(srcPath, dstPath)
		if err != nil {
			return fmt.Errorf("confirm copy of %s: %w", srcPath, err)
		}
		if !ok {
			s.logger.Printf("copy declined: from_path=%s to_path=%s", srcPath, dstPath)
			report.Add(models.Event{Kind: models.EventDeclined, Mode: mode, SourcePath: srcPath, TargetPath: dstPath})
			return nil
		}
	}

	s.logger.Printf("copy: from_path=%s to_path=%s execute=%t", srcPath, dstPath, s.config.Execute)

	event := models.Event{Kind: models.EventCopy, Mode: mode, SourcePath: srcPath, TargetPath: dstPath}
	if s.config.Execute {
		stats, err := s.dest.CopyDir(ctx, srcPath, rel)
		if err != nil {
			return fmt.Errorf("copy %s to %s: %w", srcPath, dstPath, err)
		}
		event.Files = stats.Files
		event.Size = stats.Size
	}
	report.Add(event)

	if s.config.Check {
		return s.Verify(ctx, srcPath, rel, report)
	}
	return nil
}

func isDirectory(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// dangling symlink
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
