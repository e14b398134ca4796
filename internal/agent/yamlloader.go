package agent

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the top-level structure of a persona catalog YAML file.
//
// Example:
//
//	default: general_assistant
//	agents:
//	  - id: pirate
//	    name: "Pirate Captain"
//	    voice: ballad
//	    instructions: "You are a boisterous pirate captain."
type CatalogFile struct {
	Default string       `yaml:"default"`
	Agents  []Definition `yaml:"agents"`
}

// LoadCatalogFile reads and parses a persona catalog YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadCatalogFile(path string) (*CatalogFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("agent: open catalog file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("agent: parse catalog file %q: %w", path, err)
	}
	return cf, nil
}

// LoadCatalogFromReader parses catalog YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadCatalogFromReader(r io.Reader) (*CatalogFile, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("agent: decode catalog yaml: %w", err)
	}
	return &cf, nil
}

// RegistryFromFile builds a Registry from a catalog file, or from the
// built-in catalog when path is empty.
func RegistryFromFile(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(Builtin(), "")
	}
	cf, err := LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(cf.Agents, cf.Default)
}
