package models

import (
	"fmt"
	"time"
)

// Mode names the decision taken for one source directory.
type Mode string

const (
	ModeArtistDir Mode = "artist_dir"
	ModeAlbumDir  Mode = "album_dir"
	ModeSkipped   Mode = "skipped"
)

// LevelMode returns the copy mode used for a directory found at the given
// 0-based level under the source root.
func LevelMode(level int) Mode {
	switch level {
	case 0:
		return ModeArtistDir
	case 1:
		return ModeAlbumDir
	default:
		return Mode(fmt.Sprintf("level%d_dir", level+1))
	}
}

// Run describes one invocation of the sync tool as stored in the report database.
type Run struct {
	ID           string
	SourcePath   string
	Destination  string
	Execute      bool
	Check        bool
	StartedAt    time.Time
	FinishedAt   time.Time
	CheckedFiles int64
}
