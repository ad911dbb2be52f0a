// Package checksum parses hash listings and verifies archived files against them.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// Algorithm pairs an in-process hash with the coreutils tool producing the
// same digest.
type Algorithm struct {
	// Name is the configuration name (md5, sha1, ...).
	Name string

	// Tool is the external command printing "<hash>  <path>" lines.
	Tool string

	// New returns a fresh hash state.
	New func() hash.Hash
}

var algorithms = map[string]Algorithm{
	"md5":    {Name: "md5", Tool: "md5sum", New: md5.New},
	"sha1":   {Name: "sha1", Tool: "sha1sum", New: sha1.New},
	"sha256": {Name: "sha256", Tool: "sha256sum", New: sha256.New},
	"sha512": {Name: "sha512", Tool: "sha512sum", New: sha512.New},
}

// Lookup returns the algorithm registered under name.
func Lookup(name string) (Algorithm, error) {
	alg, ok := algorithms[strings.ToLower(name)]
	if !ok {
		return Algorithm{}, fmt.Errorf("unknown hash algorithm %q (must be one of %s)", name, strings.Join(Algorithms(), ", "))
	}
	return alg, nil
}

// Algorithms returns the supported algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
