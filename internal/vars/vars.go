// Package vars carries the build metadata injected with -ldflags -X.
package vars

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Set at link time. revision and buildTime are strings so -X can reach them.
var (
	Name    = "Masterlist"
	Version = "dev"
	Commit  = "unknown"
	URL     = "https://github.com/woozymasta/masterlist"

	revision  string
	buildTime string
)

// BuildInfo is the body of the version endpoint.
type BuildInfo struct {
	BuildTime   time.Time `json:"build_time"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short"`
	URL         string    `json:"url"`
	Revision    int       `json:"revision,omitempty"`
}

// Info returns the metadata of the running binary.
func Info() BuildInfo {
	info := BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		URL:         URL,
		BuildTime:   time.Unix(0, 0).UTC(),
	}
	if n, err := strconv.Atoi(revision); err == nil {
		info.Revision = n
	}
	if t, err := time.Parse(time.RFC3339, buildTime); err == nil {
		info.BuildTime = t.UTC()
	}
	return info
}

// Print writes the metadata for --version.
func Print(w io.Writer) {
	info := Info()
	_, _ = fmt.Fprintf(w, "%s %s (%s, revision %d, built %s)\n%s\nbinary: %s\n",
		info.Name, info.Version, info.CommitShort, info.Revision,
		info.BuildTime.Format(time.RFC3339), info.URL, os.Args[0])
}

// CommitShort returns the first 7 characters of the commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
