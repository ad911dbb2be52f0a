package checksum

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyListing is returned when a host reports no files to verify.
// Zero entries cannot be told apart from a remote sweep that failed
// silently, so it fails verification.
var ErrEmptyListing = errors.New("empty hash listing")

// Listing maps file paths to their reported hashes.
type Listing map[string]string

// Paths returns the listed paths in sorted order.
func (l Listing) Paths() []string {
	paths := make([]string, 0, len(l))
	for p := range l {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ParseListing parses "<hash>  <path>" lines as printed by md5sum and
// friends. Binary-mode lines ("<hash> *<path>") and escaped names (a line
// starting with a backslash) are accepted. Blank lines and lines with an
// empty hash field are skipped.
func ParseListing(out []byte) (Listing, error) {
	listing := make(Listing)

	for i, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		escaped := false
		if strings.HasPrefix(line, `\`) {
			escaped = true
			line = line[1:]
		}

		sum, path, ok := splitLine(line)
		if !ok {
			return nil, fmt.Errorf("line %d: malformed hash listing entry %q", i+1, line)
		}
		if sum == "" {
			continue
		}
		if escaped {
			path = unescape(path)
		}

		listing[path] = strings.ToLower(sum)
	}

	return listing, nil
}

// splitLine splits a text-mode or binary-mode entry. The hash field ends at
// the first space, and the character after it selects the mode.
func splitLine(line string) (sum, path string, ok bool) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 || idx+1 >= len(line) {
		return "", "", false
	}
	switch line[idx+1] {
	case ' ', '*':
		return line[:idx], line[idx+2:], true
	}
	return "", "", false
}

// unescape reverses the coreutils escaping of "\\" and "\n" in file names.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
