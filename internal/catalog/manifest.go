package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk YAML form of a collection, as written by the
// catalog manager's export step.
type Manifest struct {
	Items []Item `yaml:"items"`
}

// LoadManifest reads a YAML manifest and builds a Collection from it. Relative
// page paths are resolved against the manifest's directory.
func LoadManifest(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Items {
		m.Items[i].Pages = resolvePaths(base, m.Items[i].Pages)
	}

	return New(m.Items)
}

func resolvePaths(base string, pages []string) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		if base == "" || filepath.IsAbs(p) {
			out[i] = p
			continue
		}
		out[i] = filepath.Join(base, p)
	}
	return out
}
