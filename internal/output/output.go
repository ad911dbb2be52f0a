// Package output provides formatted console output for a hoard run.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Stats holds run statistics for the recap line.
type Stats interface {
	GetOK() int
	GetFailed() int
	GetVerified() int
	GetDuration() time.Duration
}

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// RunStart prints the run banner.
func (o *Output) RunStart(runID, configPath string, hosts int) {
	o.printf("\n%s %s %s\n", o.color(colorBold, "RUN"), configPath,
		o.color(colorGray, fmt.Sprintf("(%d hosts, run %s)", hosts, runID)))
	if o.debug {
		o.printf("%s\n", strings.Repeat("-", 60))
	}
}

// Phase prints a phase banner.
func (o *Output) Phase(name string) {
	o.printf("\n%s %s\n", o.color(colorBold, "PHASE"), strings.ToUpper(name))
}

// HostAction announces an action started for a host, e.g. "Archiving web1".
func (o *Output) HostAction(verb, host string) {
	o.printf("  %s %s\n", o.color(colorBlue, verb), host)
}

// Command prints the command line for a host (debug mode only).
func (o *Output) Command(host, cmdline string) {
	if o.debug {
		o.printf("    %s %s\n", o.color(colorGray, host+" $"), cmdline)
	}
}

// HostResult prints one host's result in a single line.
// Format: [indicator] host status
func (o *Output) HostResult(host, status, message string) {
	var indicator string
	var statusColor string

	switch {
	case strings.HasPrefix(status, "ok"):
		indicator = "✓"
		statusColor = colorGreen
	case strings.HasPrefix(status, "failed"), strings.HasPrefix(status, "timeout"):
		indicator = "✗"
		statusColor = colorRed
	default:
		indicator = "?"
		statusColor = colorGray
	}

	o.printf("  %s %s %s\n", o.color(statusColor, indicator), host, o.color(statusColor, status))

	if message != "" && (o.debug || statusColor == colorRed) {
		for _, line := range strings.Split(strings.TrimSpace(message), "\n") {
			o.printf("    %s %s\n", o.color(colorGray, "→"), line)
		}
	}
}

// Stream prints captured output for a host (debug mode only).
func (o *Output) Stream(host, name string, data []byte) {
	if !o.debug || len(data) == 0 {
		return
	}
	o.printf("      %s\n", o.color(colorGray, host+" "+name+":"))
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		o.printf("        %s\n", line)
	}
}

// Mismatch prints a checksum mismatch with both hash values.
func (o *Output) Mismatch(host, path, remote, local string) {
	if local == "" {
		local = "(unreadable)"
	}
	o.printf("  %s %s %s\n", o.color(colorRed, "✗"), host, o.color(colorRed, "checksum mismatch"))
	o.printf("      %s %s\n", o.color(colorGray, "file:  "), path)
	o.printf("      %s %s\n", o.color(colorGray, "remote:"), remote)
	o.printf("      %s %s\n", o.color(colorGray, "local: "), local)
}

// Recap prints the run summary.
func (o *Output) Recap(state string, stats Stats) {
	o.printf("\n%s ", o.color(colorBold, "RECAP"))

	ok := o.color(colorGreen, fmt.Sprintf("ok=%d", stats.GetOK()))
	failed := o.color(colorRed, fmt.Sprintf("failed=%d", stats.GetFailed()))
	verified := o.color(colorCyan, fmt.Sprintf("verified=%d", stats.GetVerified()))

	stateColor := colorGreen
	if state != "done" {
		stateColor = colorRed
	}

	o.printf("%s %s %s %s", o.color(stateColor, state), ok, failed, verified)
	o.printf(" %s\n", o.color(colorGray, fmt.Sprintf("(%.2fs)", stats.GetDuration().Seconds())))
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.color(colorBold, name))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
