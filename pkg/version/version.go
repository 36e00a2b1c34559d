package version

// Set at build time:
//
//	go build -ldflags "-X github.com/chmdznr/music-dir-sync/pkg/version.Version=v1.2.0 \
//	  -X github.com/chmdznr/music-dir-sync/pkg/version.GitCommit=$(git rev-parse HEAD) \
//	  -X github.com/chmdznr/music-dir-sync/pkg/version.BuildTime=$(date -u +%FT%TZ)"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns a one-line summary suitable for --version output.
func String() string {
	return Version + " (" + GitCommit + ", built " + BuildTime + ")"
}
