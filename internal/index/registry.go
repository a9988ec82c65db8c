// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// registryFile lists the curated repositories known on this machine, next
// to the index database.
const registryFile = "registry.yaml"

// RegistryEntry records one curated repository available for indexing.
type RegistryEntry struct {
	// URL is the repository's public source url. It becomes the curated
	// provenance source of records indexed from the checkout.
	URL string `yaml:"repo_source_url,omitempty"`

	// Path is the local checkout to index from.
	Path string `yaml:"repo_source_path"`
}

// Registry is the set of registered curated repositories.
type Registry struct {
	Repos []RegistryEntry `yaml:"repos"`
}

// LoadRegistry reads the registry under dir. A missing file is not an
// error; LoadRegistry returns an empty registry.
func LoadRegistry(dir string) (Registry, error) {
	data, err := os.ReadFile(filepath.Join(dir, registryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, nil
		}
		return Registry{}, fmt.Errorf("reading registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parsing registry: %w", err)
	}
	return reg, nil
}

// Save writes the registry under dir, creating the directory if needed.
func (r Registry) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, registryFile), data, 0o644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	return nil
}

// Register adds a repository unless its path is already present; an
// existing entry picks up a changed url. Reports whether the registry
// changed.
func (r *Registry) Register(entry RegistryEntry) bool {
	for i := range r.Repos {
		if r.Repos[i].Path == entry.Path {
			if entry.URL != "" && r.Repos[i].URL != entry.URL {
				r.Repos[i].URL = entry.URL
				return true
			}
			return false
		}
	}
	r.Repos = append(r.Repos, entry)
	return true
}

// DefaultDir returns the default index directory ~/.review-engine.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".review-engine"), nil
}
