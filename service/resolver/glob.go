package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phaseq/mwtest/model"
)

// globRegexp translates a glob expression into a regexp over slash-separated
// relative paths. '*' matches any run of characters including separators,
// '?' a single character. An expression starting with "**/" additionally
// matches paths at the root, mirroring recursive glob semantics.
func globRegexp(expr string) (*regexp.Regexp, error) {
	var alternatives []string
	alternatives = append(alternatives, translateGlob(expr))
	if strings.HasPrefix(expr, "**/") {
		alternatives = append(alternatives, translateGlob(expr[3:]))
	}
	return regexp.Compile("^(?:" + strings.Join(alternatives, "|") + ")$")
}

func translateGlob(expr string) string {
	var b strings.Builder
	for _, r := range expr {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// extractIDs derives test ids from relative paths: the display id is the
// first capture group of the id pattern applied to the slash-separated
// relative path.
func extractIDs(relPaths []string, idPattern string, inputIsDir bool) ([]model.TestID, error) {
	pattern, err := regexp.Compile(idPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid id pattern %q: %w", idPattern, err)
	}
	var ids []model.TestID
	seen := map[string]bool{}
	for _, relPath := range relPaths {
		match := pattern.FindStringSubmatch(relPath)
		if match == nil || len(match) < 2 {
			return nil, fmt.Errorf("id pattern %q did not match test %q", idPattern, relPath)
		}
		id := model.TestID{DisplayID: match[1], RelPath: relPath}
		if inputIsDir {
			id.DisplayID = parentPath(id.DisplayID)
			id.RelPath = parentPath(id.RelPath)
		}
		if seen[id.RelPath] {
			continue
		}
		seen[id.RelPath] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func parentPath(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[:idx]
	}
	return ""
}

// parseGTestList parses `--gtest_list_tests` output: unindented lines open a
// test group, indented lines are leaf names. Trailing '#' comments are
// stripped and disabled tests skipped.
func parseGTestList(output string) []model.TestID {
	var ids []model.TestID
	group := ""
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			group = strings.TrimSpace(line)
			continue
		}
		name := group + strings.TrimSpace(line)
		if strings.Contains(name, "DISABLED") {
			continue
		}
		ids = append(ids, model.TestID{DisplayID: name})
	}
	return ids
}
