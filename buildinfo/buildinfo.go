// Package buildinfo holds the version stamped in at link time.
package buildinfo

import "fmt"

var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}
