package sandbox

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveArtifacts decodes image artifacts into dir as
// step_<HHMMSS>_<n>.<ext>, n counting from 1 over all artifacts. Non-image
// artifacts are skipped. It returns the written paths.
func SaveArtifacts(dir string, artifacts []Artifact, now time.Time) ([]string, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := now.Format("150405")
	var saved []string
	for i, a := range artifacts {
		var ext string
		switch a.Format {
		case FormatPNG:
			ext = "png"
		case FormatJPEG:
			ext = "jpg"
		default:
			continue
		}
		if a.Data == "" {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return saved, fmt.Errorf("artifact %d: invalid base64: %w", i+1, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("step_%s_%d.%s", stamp, i+1, ext))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return saved, fmt.Errorf("failed to write artifact: %w", err)
		}
		saved = append(saved, path)
	}
	return saved, nil
}
