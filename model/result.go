package model

// Artifact records where one produced file ended up and which reference
// file it corresponds to. Both fields pass through to the sink unmodified.
type Artifact struct {
	Reference string `json:"reference"`
	Location  string `json:"location"`
}

// ExecutionResult is the finalized outcome of one invocation.
type ExecutionResult struct {
	Success   bool       `json:"success"`
	Output    string     `json:"output"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Outcome pairs an execution result with its test context; the engine
// produces a stream of these to the result sink.
type Outcome struct {
	AppName string
	TestID  TestID
	Result  ExecutionResult
}
