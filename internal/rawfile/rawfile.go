// Package rawfile writes captured raw frame buffers to disk for offline
// inspection. It is a diagnostic side path, never part of steady-state
// capture.
package rawfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// maxSuffix bounds the collision-avoidance loop so a pathological
// directory cannot stall the writer.
const maxSuffix = 1000

// Write stores data as <dir>/<name>.raw, appending a numeric suffix
// rather than clobbering an existing file. It returns the path written.
func Write(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, name+".raw")
	for i := 1; i <= maxSuffix; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.raw", name, i))
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("rawfile: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("rawfile: write %s: %w", path, err)
	}
	return path, nil
}
