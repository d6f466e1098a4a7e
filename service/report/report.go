// Package report is the result sink of one run: console progress, per-app
// append logs, a JUnit-style XML document, the final instable/failed
// summaries and cleanup of empty artifact directories.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/policy"
)

// Verbosity controls the console stream.
type Verbosity int

const (
	// Quiet reports failures only.
	Quiet Verbosity = iota
	// Normal shows a one-line progress status plus failures.
	Normal
	// Verbose prints every result in full.
	Verbose
)

// Config holds reporter settings.
type Config struct {
	Verbosity Verbosity
	// ArtifactsDir receives the per-app logs and the results.xml document.
	ArtifactsDir string
}

// Reporter consumes outcomes as they arrive and renders the final artifacts
// of one run. It is safe for use as the scheduler's sink.
type Reporter struct {
	config Config
	out    io.Writer

	mu        sync.Mutex
	total     int
	seen      int
	collected []model.Outcome
	lastLine  int
}

// New creates a reporter for a run of total expected tests; outcomes beyond
// the total (retries) are reported all the same.
func New(config Config, total int, out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	if total == 0 {
		fmt.Fprintln(out, "WARNING: you have not selected any tests!")
	}
	return &Reporter{config: config, out: out, total: total}
}

// Handle implements the result sink: one call per attempt.
func (r *Reporter) Handle(outcome model.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
	r.collected = append(r.collected, outcome)
	r.appendLog(outcome)
	r.printProgress(outcome)
}

// appendLog writes the outcome to the app's append log below the artifacts
// dir. The log survives a crashed run up to the last completed test.
func (r *Reporter) appendLog(outcome model.Outcome) {
	if r.config.ArtifactsDir == "" {
		return
	}
	path := filepath.Join(r.config.ArtifactsDir, outcome.AppName+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s: %s %s\n%s\n", okOrFailed(outcome.Result.Success), outcome.AppName,
		outcome.TestID.DisplayID, outcome.Result.Output)
}

func (r *Reporter) printProgress(outcome model.Outcome) {
	name := outcome.AppName
	id := outcome.TestID.DisplayID
	if outcome.Result.Success {
		switch r.config.Verbosity {
		case Verbose:
			fmt.Fprintf(r.out, "Ok: %s --id %q\n%s\n", name, id, outcome.Result.Output)
		case Normal:
			r.statusLine(fmt.Sprintf("[%d/%d] Ok: %s --id %q", r.seen, r.total, name, id))
		}
		return
	}
	if r.config.Verbosity == Normal {
		r.statusLine("")
	}
	fmt.Fprintf(r.out, "\nFailed: %s --id %q\n%s\n", name, id, outcome.Result.Output)
}

// statusLine rewrites the current console line in place.
func (r *Reporter) statusLine(message string) {
	if r.lastLine > len(message) {
		fmt.Fprintf(r.out, "%s\r", strings.Repeat(" ", r.lastLine))
	}
	fmt.Fprintf(r.out, "%s\r", message)
	r.lastLine = len(message)
}

// Finish renders the run's closing artifacts: the JUnit document, the
// instable/failed summaries and the cleanup of empty artifact directories.
// It returns whether the run passed.
func (r *Reporter) Finish(ctx context.Context, state *policy.State) (bool, error) {
	r.mu.Lock()
	collected := r.collected
	r.mu.Unlock()

	if r.config.ArtifactsDir != "" {
		if err := r.writeJUnit(ctx, collected); err != nil {
			return false, err
		}
	}
	r.printSummary(state)
	if r.config.ArtifactsDir != "" {
		removeEmptyDirs(r.config.ArtifactsDir)
	}
	return state.Success(), nil
}

func (r *Reporter) printSummary(state *policy.State) {
	instable := state.ByClassification(policy.Instable)
	failed := state.ByClassification(policy.Failed)
	if len(instable) == 0 && len(failed) == 0 {
		fmt.Fprintln(r.out, "\nAll tests succeeded.")
		return
	}
	if len(instable) > 0 {
		fmt.Fprintln(r.out, "\nTests that are instable:")
		for _, entry := range instable {
			fmt.Fprintf(r.out, "  %s --id %q (failed %d times)\n", entry.AppName, entry.TestID.DisplayID, entry.Counts.Failures)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(r.out, "\nTests that failed:")
		for _, entry := range failed {
			if entry.Counts.Failures > 1 {
				fmt.Fprintf(r.out, "  %s --id %q (failed %d times)\n", entry.AppName, entry.TestID.DisplayID, entry.Counts.Failures)
			} else {
				fmt.Fprintf(r.out, "  %s --id %q\n", entry.AppName, entry.TestID.DisplayID)
			}
		}
	}
}

func okOrFailed(success bool) string {
	if success {
		return "Ok"
	}
	return "Failed"
}

// removeEmptyDirs prunes directories that ended up empty, deepest first.
func removeEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		// only empty directories are removable
		_ = os.Remove(dir)
	}
}
