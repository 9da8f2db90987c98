package catalog

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/projectdiscovery/fleetx/pkg/types"
	"gopkg.in/yaml.v3"
)

// File is the on-disk format of a catalog extension
type File struct {
	Platforms []PlatformDefinition `yaml:"platforms"`
}

// PlatformDefinition declares a platform. Empty patterns inherit the
// defaults of the entry named by Base (router when unset).
type PlatformDefinition struct {
	Name             string   `yaml:"name"`
	Base             string   `yaml:"base,omitempty"`
	Credential       string   `yaml:"credential,omitempty"`
	Username         string   `yaml:"username,omitempty"`
	Ready            string   `yaml:"ready,omitempty"`
	ElevationCommand *string  `yaml:"elevation,omitempty"`
	ElevationPrefix  *string  `yaml:"elevation_prefix,omitempty"`
	Escape           []string `yaml:"escape,omitempty"`
	LineEnding       string   `yaml:"line_ending,omitempty"`
}

// LoadFile merges the platform definitions of a YAML file into c
func (c *Catalog) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open catalog file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return c.Load(f)
}

// Load merges YAML platform definitions read from r into c
func (c *Catalog) Load(r io.Reader) error {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return fmt.Errorf("could not decode catalog: %w", err)
	}

	for _, definition := range file.Platforms {
		entry, err := c.build(definition)
		if err != nil {
			return err
		}
		c.Register(entry)
	}
	return nil
}

func (c *Catalog) build(definition PlatformDefinition) (*Entry, error) {
	if definition.Name == "" {
		return nil, fmt.Errorf("catalog platform without name")
	}

	base := types.PlatformRouter
	if definition.Base != "" {
		base = types.ParsePlatform(definition.Base)
	}
	parent, err := c.Lookup(base)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", definition.Name, err)
	}

	entry := &Entry{
		Platform:         types.ParsePlatform(definition.Name),
		CredentialPrompt: parent.CredentialPrompt,
		UsernamePrompt:   parent.UsernamePrompt,
		ReadyPrompt:      parent.ReadyPrompt,
		ElevationCommand: parent.ElevationCommand,
		ElevationPrefix:  parent.ElevationPrefix,
		Escape:           parent.Escape,
		LineEnding:       parent.LineEnding,
	}

	patterns := []struct {
		name   string
		source string
		target **regexp.Regexp
	}{
		{"credential", definition.Credential, &entry.CredentialPrompt},
		{"username", definition.Username, &entry.UsernamePrompt},
		{"ready", definition.Ready, &entry.ReadyPrompt},
	}
	for _, pattern := range patterns {
		if pattern.source == "" {
			continue
		}
		compiled, err := regexp.Compile(pattern.source)
		if err != nil {
			return nil, fmt.Errorf("platform %s: invalid %s pattern: %w", definition.Name, pattern.name, err)
		}
		*pattern.target = compiled
	}

	if definition.ElevationCommand != nil {
		entry.ElevationCommand = *definition.ElevationCommand
		entry.ElevationPrefix = ""
		if len(entry.ElevationCommand) >= 2 {
			entry.ElevationPrefix = entry.ElevationCommand[:2]
		}
	}
	if definition.ElevationPrefix != nil {
		entry.ElevationPrefix = *definition.ElevationPrefix
	}
	if definition.Escape != nil {
		entry.Escape = definition.Escape
	}
	if definition.LineEnding != "" {
		entry.LineEnding = definition.LineEnding
	}
	return entry, nil
}
