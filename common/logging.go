// Package common provides the logging, error and environment helpers shared by
// every litexa deployment package.
//
// Logging is built on logrus. The global Logger routes error-level lines to
// stderr and everything else to stdout so that CI jobs running a deployment can
// capture failures separately from progress output.
//
// Output Routing Strategy:
//
//	Lines containing "level=error" (text format) or "\"level\":\"error\""
//	(JSON format) go to stderr. Info, debug and warning lines go to stdout.
package common

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stdout or stderr based on their
// level marker. It operates on the final formatted output, so it works with
// both the text and the JSON logrus formatters.
type OutputSplitter struct {
	// Stdout and Stderr default to os.Stdout and os.Stderr when nil.
	Stdout io.Writer
	Stderr io.Writer
}

var (
	textErrorMarker = []byte("level=error")
	jsonErrorMarker = []byte(`"level":"error"`)
)

// Write implements io.Writer.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, textErrorMarker) || bytes.Contains(p, jsonErrorMarker) {
		return splitter.stderr().Write(p)
	}
	return splitter.stdout().Write(p)
}

func (splitter *OutputSplitter) stdout() io.Writer {
	if splitter.Stdout != nil {
		return splitter.Stdout
	}
	return os.Stdout
}

func (splitter *OutputSplitter) stderr() io.Writer {
	if splitter.Stderr != nil {
		return splitter.Stderr
	}
	return os.Stderr
}

// Logger is the process-wide logger used by the CLI. Library code receives a
// DeployLogger instead of touching this directly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
