// Package resolver turns configuration documents into concrete test groups:
// it loads the app-properties, build-layout and preset documents, enumerates
// test ids by filesystem globbing or gtest listing, and expands command
// templates into per-invocation argv lists.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/gosh"
	goshrunner "github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"

	"github.com/phaseq/mwtest/internal/idgen"
	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/service/runner"
)

const listTimeoutMs = 60_000

// Filter narrows the enumerated test ids. The zero value selects everything.
type Filter struct {
	// ID selects exactly one test by display id.
	ID string
	// Substrings select every id containing any of them, case-insensitive.
	Substrings []string
}

// Matches reports whether the test id passes the filter.
func (f Filter) Matches(id model.TestID) bool {
	if f.ID != "" {
		return id.DisplayID == f.ID
	}
	if len(f.Substrings) == 0 {
		return true
	}
	lower := strings.ToLower(id.DisplayID)
	for _, s := range f.Substrings {
		if strings.Contains(lower, strings.ToLower(strings.ReplaceAll(s, "\\", "/"))) {
			return true
		}
	}
	return false
}

// Resolver loads configuration documents and produces executable groups.
type Resolver struct {
	config Config
	fs     afs.Service

	// listTests runs a test executable's list mode; swapped by tests.
	listTests func(ctx context.Context, exe, filter string) (string, error)
}

// New creates a resolver.
func New(config Config) *Resolver {
	r := &Resolver{config: config, fs: afs.New()}
	r.listTests = r.goshListTests
	return r
}

// RegisteredApps returns every app name the app-properties document knows,
// sorted.
func (r *Resolver) RegisteredApps(ctx context.Context) ([]string, error) {
	apps := appsDocument{}
	if err := loadDocument(ctx, r.fs, r.config.documentURL(r.config.Apps), &apps); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Resolve produces the groups for the requested app names ("all" or an empty
// list selects every registered app) after applying the filter. Groups whose
// selection ends up empty are dropped.
func (r *Resolver) Resolve(ctx context.Context, appNames []string, filter Filter) ([]*model.Group, error) {
	apps := appsDocument{}
	if err := loadDocument(ctx, r.fs, r.config.documentURL(r.config.Apps), &apps); err != nil {
		return nil, err
	}
	build := buildDocument{}
	if err := loadDocument(ctx, r.fs, r.config.documentURL(r.config.Build), &build); err != nil {
		return nil, err
	}
	preset := presetDocument{}
	if err := loadDocument(ctx, r.fs, r.config.documentURL(r.config.Preset), &preset); err != nil {
		return nil, err
	}

	requested, err := r.requestedApps(appNames, apps, build)
	if err != nil {
		return nil, err
	}

	var groups []*model.Group
	for _, appName := range sortedKeys(preset) {
		if !requested[appName] {
			continue
		}
		appEntry, ok := apps[appName]
		if !ok {
			continue
		}
		locations, ok := build[appName]
		if !ok {
			continue
		}
		exe := r.buildPath(locations, "exe")
		if exists, _ := r.fs.Exists(ctx, exe); !exists {
			return nil, fmt.Errorf("could not find test executable for %v at %v; did you forget to build?", appName, exe)
		}
		template := r.expandBuildPlaceholders(appEntry.Command, locations)
		cwd := r.buildPath(locations, "cwd")

		for i := range preset[appName] {
			selection := &preset[appName][i]
			ids, err := r.enumerate(ctx, selection, exe, appEntry.InputIsDir)
			if err != nil {
				return nil, fmt.Errorf("failed to enumerate tests for %v: %w", appName, err)
			}
			var selected []model.TestID
			for _, id := range ids {
				if filter.Matches(id) {
					selected = append(selected, id)
				}
			}
			if len(selected) == 0 {
				continue
			}
			for _, artifactsPath := range r.config.artifactPaths() {
				group := &model.Group{
					AppName:     appName,
					Command:     &model.CommandTemplate{Template: template, Cwd: cwd},
					TestIDs:     selected,
					Parallel:    selection.parallel(),
					Distributed: selection.distributed(),
					InputIsDir:  appEntry.InputIsDir,
				}
				// gtest selections have no backing files: no reference
				// inputs, no artifact placement
				if !selection.isGTest() {
					group.ArtifactsPath = artifactsPath
					group.TestcasesPath = r.config.TestcasesDir
				}
				groups = append(groups, group)
			}
		}
	}
	return groups, nil
}

// CommandFor returns the invocation factory the backends consume. Every call
// yields a fresh invocation; groups with an artifacts path get a new private
// temp location below <artifacts>/tmp each time.
func (r *Resolver) CommandFor() runner.CommandFor {
	return func(id model.TestID, group *model.Group) (model.Invocation, error) {
		tempDir := ""
		if group.ArtifactsPath != "" {
			tempDir = filepath.Join(group.ArtifactsPath, "tmp", idgen.New())
		}
		input := id.DisplayID
		if group.TestcasesPath != "" {
			input = filepath.Join(group.TestcasesPath, filepath.FromSlash(id.RelPath))
		}
		invocation, err := group.Command.Expand(input, tempDir, group.InputIsDir)
		if err != nil {
			return model.Invocation{}, err
		}
		if tempDir != "" {
			target := tempDir
			if !group.Command.NeedsTempDir() {
				// single output file: only its parent must exist
				target = filepath.Dir(tempDir)
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return model.Invocation{}, fmt.Errorf("failed to create temp dir %v: %w", tempDir, err)
			}
		}
		return invocation, nil
	}
}

func (r *Resolver) requestedApps(appNames []string, apps appsDocument, build buildDocument) (map[string]bool, error) {
	requested := map[string]bool{}
	all := len(appNames) == 0 || (len(appNames) == 1 && appNames[0] == "all")
	if all {
		for name := range apps {
			if _, ok := build[name]; ok {
				requested[name] = true
			}
		}
		return requested, nil
	}
	for _, name := range appNames {
		if _, ok := apps[name]; !ok {
			return nil, fmt.Errorf("unknown test application %q", name)
		}
		requested[name] = true
	}
	return requested, nil
}

// buildPath joins one build-document location with the build dir; the
// "project" key is organisational metadata and never a path.
func (r *Resolver) buildPath(locations map[string]string, key string) string {
	value, ok := locations[key]
	if !ok || key == "project" {
		return value
	}
	return filepath.Join(r.config.BuildDir, filepath.FromSlash(value))
}

// expandBuildPlaceholders substitutes {{key}} placeholders from the build
// document into the command template.
func (r *Resolver) expandBuildPlaceholders(command string, locations map[string]string) string {
	for key := range locations {
		if key == "project" {
			continue
		}
		command = strings.ReplaceAll(command, "{{"+key+"}}", r.buildPath(locations, key))
	}
	return command
}

// enumerate lists the test ids of one preset group.
func (r *Resolver) enumerate(ctx context.Context, group *presetGroup, exe string, inputIsDir bool) ([]model.TestID, error) {
	if group.isGTest() {
		output, err := r.listTests(ctx, exe, group.FindGTest)
		if err != nil {
			return nil, err
		}
		return parseGTestList(output), nil
	}
	if group.FindGlob == "" {
		return nil, fmt.Errorf("preset group defines neither find_glob nor find_gtest")
	}
	return r.globTests(ctx, group, inputIsDir)
}

// globTests walks the testcases tree and selects files matching the glob
// expression.
func (r *Resolver) globTests(ctx context.Context, group *presetGroup, inputIsDir bool) ([]model.TestID, error) {
	pattern, err := globRegexp(group.FindGlob)
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", group.FindGlob, err)
	}
	baseURL := url.Normalize(r.config.TestcasesDir, file.Scheme)
	objects, err := r.fs.List(ctx, baseURL, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list testcases under %v: %w", baseURL, err)
	}
	var relPaths []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		relPath := strings.TrimPrefix(strings.TrimPrefix(object.URL(), baseURL), "/")
		if pattern.MatchString(relPath) {
			relPaths = append(relPaths, relPath)
		}
	}
	sort.Strings(relPaths)
	return extractIDs(relPaths, group.IDPattern, inputIsDir)
}

// goshListTests runs the executable's gtest list mode through a local shell
// session.
func (r *Resolver) goshListTests(ctx context.Context, exe, filter string) (string, error) {
	session, err := gosh.New(ctx, local.New())
	if err != nil {
		return "", fmt.Errorf("failed to open shell session: %w", err)
	}
	defer session.Close()
	command := fmt.Sprintf("%v --gtest_list_tests --gtest_filter=%v", exe, filter)
	output, status, err := session.Run(ctx, command, goshrunner.WithTimeout(listTimeoutMs))
	if err != nil {
		return "", fmt.Errorf("failed to list tests: %w", err)
	}
	if status != 0 {
		return "", fmt.Errorf("test listing exited with status %d: %s", status, output)
	}
	return output, nil
}

func sortedKeys(preset presetDocument) []string {
	keys := make([]string, 0, len(preset))
	for key := range preset {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
