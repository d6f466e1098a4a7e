// Package artifacts places files produced by an invocation next to their
// reference inputs: everything a test writes into its private temp location
// moves to <artifacts>/{different|equal}/<rel-path> depending on the result,
// and the temp location is removed. Failed text artifacts get a unified diff
// against their reference appended to the captured output.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/phaseq/mwtest/model"
)

// maxDiffSize bounds the artifact size considered for diffing.
const maxDiffSize = 1 << 20

// tempMarker tags scratch files an application never wants collected.
const tempMarker = "__tmp"

// Store implements artifact placement on top of the abstract file system.
type Store struct {
	fs afs.Service
}

// New creates a store.
func New() *Store {
	return &Store{fs: afs.New()}
}

// Prepare resets the artifacts root for one run: a stale tree from a
// previous run is removed and the shared temp parent created.
func (s *Store) Prepare(ctx context.Context, artifactsDir string) error {
	if exists, _ := s.fs.Exists(ctx, artifactsDir); exists {
		if err := s.fs.Delete(ctx, artifactsDir); err != nil {
			return fmt.Errorf("failed to clear artifacts dir %v: %w", artifactsDir, err)
		}
	}
	tmpDir := filepath.Join(artifactsDir, "tmp")
	if err := s.fs.Create(ctx, tmpDir, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("failed to create %v: %w", tmpDir, err)
	}
	return nil
}

// Finalize moves the invocation's produced artifacts into place and returns
// the finalized result. Placement problems never fail the run; they are
// logged and the raw result passed through.
func (s *Store) Finalize(ctx context.Context, group *model.Group, id model.TestID, invocation model.Invocation, success bool, output string) model.ExecutionResult {
	result := model.ExecutionResult{Success: success, Output: output}
	if invocation.TempDir == "" {
		return result
	}
	artifacts, err := s.move(ctx, group, id, invocation.TempDir, success)
	if err != nil {
		log.Printf("artifacts: failed to place artifacts of %v: %v", id, err)
		return result
	}
	result.Artifacts = artifacts
	if !success {
		result.Output = s.appendDiffs(result.Output, artifacts)
	}
	return result
}

// move relocates everything below tempPath. A temp directory moves file by
// file into the equal/different tree; a single temp output file moves as a
// whole. Scratch files are skipped.
func (s *Store) move(ctx context.Context, group *model.Group, id model.TestID, tempPath string, success bool) ([]model.Artifact, error) {
	info, err := os.Stat(tempPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	relPath := filepath.FromSlash(id.RelPath)
	if !info.IsDir() {
		reference := filepath.Join(group.TestcasesPath, relPath)
		location := filepath.Join(s.resultDir(group, success), relPath)
		if err := s.fs.Create(ctx, filepath.Dir(location), file.DefaultDirOsMode, true); err != nil {
			return nil, err
		}
		if err := s.fs.Move(ctx, tempPath, location); err != nil {
			return nil, err
		}
		return []model.Artifact{{Reference: reference, Location: location}}, nil
	}

	entries, err := os.ReadDir(tempPath)
	if err != nil {
		return nil, err
	}
	var artifacts []model.Artifact
	if len(entries) > 0 {
		resultDir := filepath.Join(s.resultDir(group, success), relPath)
		referenceDir := filepath.Join(group.TestcasesPath, relPath)
		if !group.InputIsDir {
			resultDir = filepath.Dir(resultDir)
			referenceDir = filepath.Dir(referenceDir)
		}
		if err := s.fs.Create(ctx, resultDir, file.DefaultDirOsMode, true); err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if strings.Contains(entry.Name(), tempMarker) {
				continue
			}
			location := filepath.Join(resultDir, entry.Name())
			if err := s.fs.Move(ctx, filepath.Join(tempPath, entry.Name()), location); err != nil {
				return nil, err
			}
			artifacts = append(artifacts, model.Artifact{
				Reference: filepath.Join(referenceDir, entry.Name()),
				Location:  location,
			})
		}
	}
	if err := s.fs.Delete(ctx, tempPath); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}

func (s *Store) resultDir(group *model.Group, success bool) string {
	bucket := "different"
	if success {
		bucket = "equal"
	}
	return filepath.Join(group.ArtifactsPath, bucket)
}

// appendDiffs attaches a unified diff per failed text artifact whose
// reference exists.
func (s *Store) appendDiffs(output string, artifacts []model.Artifact) string {
	for _, artifact := range artifacts {
		produced, ok := readText(artifact.Location)
		if !ok {
			continue
		}
		reference, ok := readText(artifact.Reference)
		if !ok {
			continue
		}
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(reference),
			B:        difflib.SplitLines(produced),
			FromFile: artifact.Reference,
			ToFile:   artifact.Location,
			Context:  3,
		})
		if err != nil || diff == "" {
			continue
		}
		output += "\n" + diff
	}
	return output
}

// readText loads a file if it is reasonably small and looks like text.
func readText(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() > maxDiffSize {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}
