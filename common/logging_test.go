package common

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputSplitter_Routing(t *testing.T) {
	tests := []struct {
		name         string
		logMessage   []byte
		expectStderr bool
	}{
		{
			name:         "ErrorLevel",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=error msg="upload demo/development/default/a.png failed"`),
			expectStderr: true,
		},
		{
			name:         "JSONErrorLevel",
			logMessage:   []byte(`{"level":"error","msg":"failed assets deployment"}`),
			expectStderr: true,
		},
		{
			name:         "InfoLevel",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=info msg="uploading asset set default"`),
			expectStderr: false,
		},
		{
			name:         "WarnLevel",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=warning msg="remote object changed out of band"`),
			expectStderr: false,
		},
		{
			name:         "ErrorInMessage",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=info msg="error occurred but not error level"`),
			expectStderr: false,
		},
		{
			name:         "DifferentCase",
			logMessage:   []byte("LEVEL=ERROR"),
			expectStderr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			splitter := &OutputSplitter{Stdout: &stdout, Stderr: &stderr}

			n, err := splitter.Write(tt.logMessage)
			assert.NoError(t, err)
			assert.Equal(t, len(tt.logMessage), n)

			if tt.expectStderr {
				assert.Equal(t, tt.logMessage, stderr.Bytes())
				assert.Zero(t, stdout.Len())
			} else {
				assert.Equal(t, tt.logMessage, stdout.Bytes())
				assert.Zero(t, stderr.Len())
			}
		})
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestOutputSplitter_ConcurrentWrites(t *testing.T) {
	out := &lockedBuffer{}
	splitter := &OutputSplitter{Stdout: out, Stderr: out}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			message := []byte("concurrent message\n")
			n, err := splitter.Write(message)
			assert.NoError(t, err)
			assert.Equal(t, len(message), n)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, bytes.Count(out.buf.Bytes(), []byte("\n")))
}

func TestLogger_OutputIsSplitter(t *testing.T) {
	assert.NotNil(t, Logger)
	_, ok := Logger.Out.(*OutputSplitter)
	assert.True(t, ok, "Logger should use OutputSplitter")
}

func BenchmarkOutputSplitter_Write(b *testing.B) {
	var sink bytes.Buffer
	splitter := &OutputSplitter{Stdout: &sink, Stderr: &sink}
	message := []byte(`time="2024-01-15T10:30:00Z" level=info msg="Benchmark message"`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sink.Reset()
		splitter.Write(message)
	}
}
