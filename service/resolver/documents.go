package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// appEntry describes how one application is invoked. The command is a single
// string; {{input}}, {{out_dir}} and {{out_file}} are expanded per test,
// every other {{key}} placeholder is substituted from the build document at
// load time.
type appEntry struct {
	Command    string `json:"command" yaml:"command"`
	InputIsDir bool   `json:"input_is_dir" yaml:"input_is_dir"`
}

// appsDocument maps app name to its invocation properties.
type appsDocument map[string]appEntry

// buildDocument maps app name to build locations. Every value except
// "project" is a path relative to the build dir.
type buildDocument map[string]map[string]string

// presetGroup selects one batch of test ids for an app: either a filesystem
// glob with an id-extraction pattern, or a gtest filter resolved by running
// the executable's list mode.
type presetGroup struct {
	FindGlob  string `json:"find_glob" yaml:"find_glob"`
	IDPattern string `json:"id_pattern" yaml:"id_pattern"`
	FindGTest string `json:"find_gtest" yaml:"find_gtest"`
	// Parallel defaults to true.
	Parallel *bool `json:"parallel" yaml:"parallel"`
	// Distributed defaults to true.
	Distributed *bool `json:"distributed" yaml:"distributed"`
}

func (g *presetGroup) parallel() bool    { return g.Parallel == nil || *g.Parallel }
func (g *presetGroup) distributed() bool { return g.Distributed == nil || *g.Distributed }
func (g *presetGroup) isGTest() bool     { return g.FindGTest != "" }

// presetDocument maps app name to its test selection groups.
type presetDocument map[string][]presetGroup

// loadDocument fetches and decodes one configuration document; the format
// follows the URL extension, defaulting to JSON.
func loadDocument(ctx context.Context, fs afs.Service, URL string, target interface{}) error {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to load document %v: %w", URL, err)
	}
	switch strings.ToLower(path.Ext(URL)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("failed to parse yaml document %v: %w", URL, err)
		}
	default:
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("failed to parse json document %v: %w", URL, err)
		}
	}
	return nil
}
