// Package logsink writes captured process output to the stdout and stderr logs.
package logsink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/eugenetaranov/hoard/internal/result"
)

// rule separates the header from the captured output.
var rule = strings.Repeat("=", 30)

// Sink appends host results to two log streams.
type Sink struct {
	stdout io.Writer
	stderr io.Writer
	closer []io.Closer
	runID  string
	now    func() time.Time
}

// New creates a sink writing to the given streams.
func New(stdout, stderr io.Writer, runID string) *Sink {
	return &Sink{
		stdout: stdout,
		stderr: stderr,
		runID:  runID,
		now:    time.Now,
	}
}

// Open opens (creating if needed) both log files for appending.
func Open(fs afero.Fs, stdoutPath, stderrPath, runID string) (*Sink, error) {
	out, err := openAppend(fs, stdoutPath)
	if err != nil {
		return nil, err
	}

	errFile, err := openAppend(fs, stderrPath)
	if err != nil {
		out.Close()
		return nil, err
	}

	s := New(out, errFile, runID)
	s.closer = []io.Closer{out, errFile}
	return s, nil
}

func openAppend(fs afero.Fs, path string) (afero.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create log directory %s: %w", dir, err)
		}
	}
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	return f, nil
}

// Flush writes every non-empty stream of a batch, in host order.
func (s *Sink) Flush(batch *result.Batch) error {
	for _, host := range batch.Hosts() {
		r, ok := batch.Get(host)
		if !ok {
			continue
		}
		if len(r.Stdout) > 0 {
			if err := s.write(s.stdout, batch.Namespace, host, r.Stdout); err != nil {
				return err
			}
		}
		if len(r.Stderr) > 0 {
			if err := s.write(s.stderr, batch.Namespace, host, r.Stderr); err != nil {
				return err
			}
		}
	}
	return nil
}

// write emits: "<timestamp> - <host> [<namespace>] (run <id>)", a rule line,
// then the output.
func (s *Sink) write(w io.Writer, namespace, host string, data []byte) error {
	header := fmt.Sprintf("%s - %s [%s]", s.now().Format(time.RFC3339), host, namespace)
	if s.runID != "" {
		header += fmt.Sprintf(" (run %s)", s.runID)
	}

	body := string(data)
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}

	if _, err := fmt.Fprintf(w, "%s\n%s\n%s", header, rule, body); err != nil {
		return fmt.Errorf("cannot write log for %s: %w", host, err)
	}
	return nil
}

// Close closes files opened by Open.
func (s *Sink) Close() error {
	var first error
	for _, c := range s.closer {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closer = nil
	return first
}
