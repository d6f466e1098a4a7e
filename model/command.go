package model

import (
	"fmt"
	"path"
	"strings"

	"github.com/phaseq/mwtest/internal/shlex"
)

// Placeholders recognised in command templates.
const (
	placeholderInput   = "{{input}}"
	placeholderOutDir  = "{{out_dir}}"
	placeholderOutFile = "{{out_file}}"
)

// CommandTemplate expands a command line per test id. The template is a
// single command string with {{input}}, {{out_dir}} and {{out_file}}
// placeholders; build-specific placeholders ({{exe}} etc.) are substituted
// once at load time by the resolver.
type CommandTemplate struct {
	Template string
	// Cwd overrides the derived working directory when set.
	Cwd string
}

// Invocation is one concrete execution of a test's underlying command.
type Invocation struct {
	Argv []string
	Dir  string
	// TempDir is the invocation-private artifact scratch directory; empty
	// when the group declares no artifacts path.
	TempDir string
}

// NeedsTempDir reports whether the template writes into a temp directory
// (as opposed to a single temp output file).
func (c *CommandTemplate) NeedsTempDir() bool {
	return strings.Contains(c.Template, placeholderOutDir)
}

// Expand resolves the template into an invocation for the given input and
// optional temp location.
func (c *CommandTemplate) Expand(input, tempDir string, inputIsDir bool) (Invocation, error) {
	command := strings.ReplaceAll(c.Template, placeholderInput, input)
	if tempDir != "" {
		if c.NeedsTempDir() {
			command = strings.ReplaceAll(command, placeholderOutDir, tempDir)
		} else {
			command = strings.ReplaceAll(command, placeholderOutFile, tempDir)
		}
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to split command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return Invocation{}, fmt.Errorf("empty command for input %q", input)
	}
	cwd := c.Cwd
	if cwd == "" {
		if inputIsDir {
			cwd = input
		} else {
			cwd = path.Dir(input)
		}
	}
	return Invocation{Argv: argv, Dir: cwd, TempDir: tempDir}, nil
}
