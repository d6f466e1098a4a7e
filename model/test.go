package model

// TestID identifies one test case. DisplayID is the human-facing name used
// for filtering and reporting. RelPath locates the test input below the
// testcases root; it is empty for tests enumerated by an external framework
// (for example gtest), which have no backing file.
type TestID struct {
	DisplayID string `json:"displayId" yaml:"displayId"`
	RelPath   string `json:"relPath,omitempty" yaml:"relPath,omitempty"`
}

// String returns the display id.
func (t TestID) String() string { return t.DisplayID }

// Group is an ordered set of test ids that share one application and one
// execution mode. Immutable once resolved.
type Group struct {
	AppName string
	Command *CommandTemplate
	TestIDs []TestID

	// ArtifactsPath is the root for produced artifacts; empty for apps that
	// write no artifacts (then no temp dir is ever created).
	ArtifactsPath string
	// TestcasesPath is the root of the reference inputs; empty for
	// externally-enumerated frameworks.
	TestcasesPath string
	// InputIsDir marks apps whose test input is a directory rather than a
	// single file.
	InputIsDir bool

	// Parallel permits execution through the local worker pool.
	Parallel bool
	// Distributed permits off-loading to the farm; groups with
	// Distributed=false run locally-constrained even during a farm run.
	Distributed bool
}
