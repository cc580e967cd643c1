package state

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	artifactOnce sync.Once
	artifactRoot string
)

// ArtifactRoot returns COURIER_ARTIFACT_ROOT as an absolute path, or "".
func ArtifactRoot() string {
	artifactOnce.Do(func() {
		c := strings.TrimSpace(os.Getenv("COURIER_ARTIFACT_ROOT"))
		if c == "" {
			return
		}
		if abs, err := filepath.Abs(c); err == nil {
			artifactRoot = abs
		} else {
			artifactRoot = c
		}
	})
	return artifactRoot
}
