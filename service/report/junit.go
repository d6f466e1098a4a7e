package report

import (
	"bytes"
	"context"
	"encoding/xml"
	"path/filepath"
	"regexp"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/phaseq/mwtest/model"
)

// testTimePattern extracts the self-reported duration some applications
// print into their output.
var testTimePattern = regexp.MustCompile(`(?m)^TEST_TIME: ([^ ]*)`)

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string          `xml:"name,attr"`
	Time      string          `xml:"time,attr,omitempty"`
	Failure   *junitFailure   `xml:"failure,omitempty"`
	Artifacts []junitArtifact `xml:"artifact,omitempty"`
	SystemOut string          `xml:"system-out"`
}

type junitFailure struct{}

type junitArtifact struct {
	Reference string `xml:"reference,attr"`
	Location  string `xml:"location,attr"`
}

// writeJUnit renders results.xml into the artifacts dir: one suite per app,
// one case per attempt.
func (r *Reporter) writeJUnit(ctx context.Context, outcomes []model.Outcome) error {
	suites := junitTestSuites{}
	index := map[string]int{}
	for _, outcome := range outcomes {
		i, ok := index[outcome.AppName]
		if !ok {
			i = len(suites.Suites)
			index[outcome.AppName] = i
			suites.Suites = append(suites.Suites, junitTestSuite{Name: outcome.AppName})
		}
		suite := &suites.Suites[i]
		testCase := junitTestCase{
			Name:      outcome.TestID.DisplayID,
			SystemOut: outcome.Result.Output,
		}
		if match := testTimePattern.FindStringSubmatch(outcome.Result.Output); match != nil {
			testCase.Time = match[1]
		}
		if !outcome.Result.Success {
			testCase.Failure = &junitFailure{}
			suite.Failures++
		}
		for _, artifact := range outcome.Result.Artifacts {
			testCase.Artifacts = append(testCase.Artifacts, junitArtifact{
				Reference: absPath(artifact.Reference),
				Location:  absPath(artifact.Location),
			})
		}
		suite.Tests++
		suite.Cases = append(suite.Cases, testCase)
	}

	data, err := xml.MarshalIndent(&suites, "", "  ")
	if err != nil {
		return err
	}
	document := append([]byte(xml.Header), data...)
	fs := afs.New()
	target := filepath.Join(r.config.ArtifactsDir, "results.xml")
	return fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(document))
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
