package command

import (
	"fmt"
	"strconv"

	"github.com/eugenetaranov/hoard/internal/connector"
)

func init() {
	Register(Archive, buildArchive)
	Register(Clean, buildClean)
	Register(LocalChecksum, buildLocalChecksum)
	Register(RemoteChecksum, buildRemoteChecksum)
}

// buildArchive copies the remote folder into the local path: recursive,
// timestamps preserved, compressed in transit.
func buildArchive(t Target) ([]string, error) {
	if t.LocalPath == "" {
		return nil, fmt.Errorf("missing local path")
	}

	conn, err := ConnectorFor(t.Source)
	if err != nil {
		return nil, err
	}

	args := []string{"rsync", "-avz"}
	if shell := conn.RsyncShell(); shell != "" {
		args = append(args, "--blocking-io", "-e", shell)
	}
	args = append(args, conn.RsyncSource(t.Source.Folder), connector.TrailingSlash(t.LocalPath))

	return args, nil
}

// buildClean removes files older than max age on the source host.
func buildClean(t Target) ([]string, error) {
	if t.Source.MaxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %d", t.Source.MaxAge)
	}

	conn, err := ConnectorFor(t.Source)
	if err != nil {
		return nil, err
	}

	find := []string{
		"find", t.Source.Folder,
		"-type", "f",
		"-name", namePattern(t.Source.Extension),
		"-mmin", "+" + strconv.Itoa(t.Source.MaxAge),
		"-exec", "rm", "-f", "{}", "+",
	}

	return conn.Wrap(find), nil
}

// buildLocalChecksum hashes the archived copies on this machine.
func buildLocalChecksum(t Target) ([]string, error) {
	if t.LocalPath == "" {
		return nil, fmt.Errorf("missing local path")
	}
	if t.Algorithm.Tool == "" {
		return nil, fmt.Errorf("missing checksum algorithm")
	}
	return checksumSweep(t.LocalPath, t.Source.Extension, t.Algorithm.Tool), nil
}

// buildRemoteChecksum hashes the source files on the source host.
func buildRemoteChecksum(t Target) ([]string, error) {
	if t.Algorithm.Tool == "" {
		return nil, fmt.Errorf("missing checksum algorithm")
	}

	conn, err := ConnectorFor(t.Source)
	if err != nil {
		return nil, err
	}

	return conn.Wrap(checksumSweep(t.Source.Folder, t.Source.Extension, t.Algorithm.Tool)), nil
}

func checksumSweep(folder, extension, tool string) []string {
	return []string{
		"find", folder,
		"-type", "f",
		"-name", namePattern(extension),
		"-exec", tool, "{}", "+",
	}
}

func namePattern(extension string) string {
	return "*." + extension
}
