// Package output delivers a finished draft to its destination.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"postdraft/internal/types"
)

// WriteError reports a failed delivery. Op names the step that failed.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	dest := e.Path
	if dest == "" {
		dest = "stdout"
	}
	return fmt.Sprintf("failed to write draft to %s (%s): %v", dest, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Sink accepts a finished draft.
type Sink interface {
	Write(result *types.DraftResult) error
}

// ForDestination returns a file sink for a non-empty path, otherwise a
// stream sink on stdout.
func ForDestination(path string, stdout io.Writer) Sink {
	if path == "" {
		return NewStreamSink(stdout)
	}
	return NewFileSink(path)
}

// StreamSink writes the draft followed by a newline in a single write.
type StreamSink struct {
	w io.Writer
}

// NewStreamSink creates a sink writing to w.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

func (s *StreamSink) Write(result *types.DraftResult) error {
	buf := make([]byte, 0, len(result.Text)+1)
	buf = append(buf, result.Text...)
	buf = append(buf, '\n')
	if _, err := s.w.Write(buf); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// FileSink replaces the file at path with the draft text, byte for byte.
// The new contents are written to a sibling temp file, synced, then renamed
// into place, so the destination holds either its old bytes or the complete
// draft.
type FileSink struct {
	path string
	perm os.FileMode
}

// NewFileSink creates a sink for path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path, perm: 0o644}
}

// Path returns the destination path.
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Write(result *types.DraftResult) (err error) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: s.path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.WriteString(result.Text); err != nil {
		return &WriteError{Path: s.path, Op: "write", Err: err}
	}
	if err = tmp.Sync(); err != nil {
		return &WriteError{Path: s.path, Op: "sync", Err: err}
	}
	if err = tmp.Chmod(s.perm); err != nil {
		return &WriteError{Path: s.path, Op: "chmod", Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &WriteError{Path: s.path, Op: "close", Err: err}
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return &WriteError{Path: s.path, Op: "rename", Err: err}
	}
	return nil
}
