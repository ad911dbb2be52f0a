package checksum

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// ChunkSize is the read buffer used when hashing local files.
const ChunkSize = 64 * 1024

// HashFile streams path through alg and returns the hex digest.
func HashFile(fs afero.Fs, path string, alg Algorithm) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	return HashReader(f, alg)
}

// HashReader streams r through alg and returns the hex digest.
func HashReader(r io.Reader, alg Algorithm) (string, error) {
	h := alg.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("cannot read: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
