package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new unique hex identifier, used to name invocation-private
// temp artifact directories. Override in tests for determinism.
var NewFunc = func() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// New is a thin wrapper around NewFunc.
func New() string { return NewFunc() }
