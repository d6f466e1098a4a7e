package resolver

import (
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs/url"
)

// Config locates the configuration documents and the filesystem roots of one
// run. Document names without a path resolve against BaseURL; names with an
// extension are taken as-is, otherwise ".json" is appended.
type Config struct {
	// BaseURL is the root holding the apps, build and preset documents.
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	// Apps names the app-properties document (command templates per app).
	Apps string `json:"apps" yaml:"apps"`
	// Build names the build-layout document (executable locations per app).
	Build string `json:"build" yaml:"build"`
	// Preset names the preset document (test selection per app).
	Preset string `json:"preset" yaml:"preset"`

	// BuildDir prefixes every relative location of the build document.
	BuildDir string `json:"buildDir" yaml:"buildDir"`
	// TestcasesDir is the root of the reference inputs.
	TestcasesDir string `json:"testcasesDir" yaml:"testcasesDir"`
	// ArtifactsDir is the root for produced artifacts and temp dirs.
	ArtifactsDir string `json:"artifactsDir" yaml:"artifactsDir"`

	// Repeat runs the same selection N times, each iteration with its own
	// artifact root below ArtifactsDir.
	Repeat int `json:"repeat" yaml:"repeat"`
}

// DefaultConfig returns resolver settings with documented defaults.
func DefaultConfig() Config {
	return Config{
		Apps:   "apps",
		Preset: "ci",
		Repeat: 1,
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Build == "" {
		return fmt.Errorf("build document is required")
	}
	if c.BuildDir == "" {
		return fmt.Errorf("buildDir is required")
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", c.Repeat)
	}
	return nil
}

// documentURL resolves a document name to a loadable URL.
func (c *Config) documentURL(name string) string {
	if strings.Contains(name, "/") || strings.Contains(name, "://") {
		return name
	}
	if path.Ext(name) == "" {
		name += ".json"
	}
	return url.Join(c.BaseURL, name)
}

// artifactPaths returns one artifact root per repeat iteration.
func (c *Config) artifactPaths() []string {
	if c.Repeat <= 1 {
		return []string{c.ArtifactsDir}
	}
	paths := make([]string, 0, c.Repeat)
	for i := 0; i < c.Repeat; i++ {
		paths = append(paths, fmt.Sprintf("%s/%d", c.ArtifactsDir, i))
	}
	return paths
}
