package testlog

import (
	"testing"

	logs "github.com/danmuck/eppkit/internal/logging"
)

// Start configures test logging once and tags the output with the test name.
func Start(t *testing.T) {
	t.Helper()
	logs.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}
