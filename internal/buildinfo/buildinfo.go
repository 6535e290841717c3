// Package buildinfo exposes version metadata injected at build time via
// -ldflags, e.g.:
//
//	go build -ldflags "-X .../buildinfo.buildVersion=v1.2.0 \
//	  -X .../buildinfo.buildDate=2026-08-26 -X .../buildinfo.buildCommit=abc123"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

// PrintBuildData writes the build metadata to w.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", buildVersion)
	fmt.Fprintf(w, "Build date: %s\n", buildDate)
	fmt.Fprintf(w, "Build commit: %s\n", buildCommit)
}
