package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"celeb-dna-collector/dna"
)

// Dirs are the per-subject working directories.
type Dirs struct {
	Root     string
	Frames   string
	Analyzed string
}

// EnsureDirs creates <outputDir>/<subjectID>/{frames,analyzed}.
func EnsureDirs(outputDir, subjectID string) (Dirs, error) {
	root := filepath.Join(outputDir, subjectID)
	d := Dirs{
		Root:     root,
		Frames:   filepath.Join(root, "frames"),
		Analyzed: filepath.Join(root, "analyzed"),
	}
	for _, dir := range []string{d.Frames, d.Analyzed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Dirs{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return d, nil
}

// ArtifactName is the file name of a subject's profile document.
func ArtifactName(subjectID string) string {
	return subjectID + "_dna.json"
}

// WriteArtifact writes p as indented JSON into dir and returns the path.
func WriteArtifact(dir string, p *dna.Profile) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("encoding profile %s: %w", p.SubjectID, err)
	}

	path := filepath.Join(dir, ArtifactName(p.SubjectID))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
