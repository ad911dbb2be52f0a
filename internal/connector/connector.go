// Package connector defines how commands reach a source host.
package connector

import "strings"

// Connector turns a structured argv into the argv that runs it on a source
// host, and describes how rsync reaches that host.
type Connector interface {
	// Wrap returns the local argv that executes argv on the target.
	Wrap(argv []string) []string

	// RsyncShell returns the value for rsync's -e flag, or "" for the default.
	RsyncShell() string

	// RsyncSource returns the rsync source operand for a remote folder.
	RsyncSource(folder string) string

	// String returns a human-readable description of the connection.
	String() string
}

// TrailingSlash makes rsync copy folder contents rather than the folder itself.
func TrailingSlash(folder string) string {
	if folder == "" || folder[len(folder)-1] != '/' {
		return folder + "/"
	}
	return folder
}

// ShellQuote minimally quotes an argument for POSIX shells. Common safe
// characters are left unquoted; anything else is single-quoted with the
// standard '\'' escape for embedded single quotes.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		}
		return true
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellJoin quotes and joins argv into one command line.
func ShellJoin(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, a := range argv {
		quoted = append(quoted, ShellQuote(a))
	}
	return strings.Join(quoted, " ")
}
