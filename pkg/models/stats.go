package models

// Stats represents run statistics
type Stats struct {
	CopyUnits     int64
	SkippedUnits  int64
	DeclinedUnits int64
	CopiedFiles   int64
	CopiedSize    int64
	CheckedFiles  int64
	FailedChecks  int64
	MissingFiles  int64 // check failures caused by an absent destination file
}
