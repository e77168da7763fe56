package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	Version, Commit, Date = "v1.2.0", "abc123", "2026-01-02"
	defer func() {
		Version, Commit, Date = "latest", "none", "unknown"
	}()
	assert.Equal(t, "v1.2.0-2026-01-02-abc123", String())
}
