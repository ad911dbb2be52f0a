// Package layout maps source hosts and remote paths onto the local archive tree.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotDirectory is returned when a non-directory occupies a target folder.
var ErrNotDirectory = errors.New("not a directory")

// ErrOutsideTree is returned when a remote path would resolve outside the
// host's archive tree.
var ErrOutsideTree = errors.New("path escapes archive tree")

// Builder builds <root>/<host>/<remote folder> paths.
type Builder struct {
	fs   afero.Fs
	root string
}

// New creates a builder on the OS filesystem.
func New(root string) *Builder {
	return NewWithFs(afero.NewOsFs(), root)
}

// NewWithFs creates a builder on the given filesystem.
func NewWithFs(fs afero.Fs, root string) *Builder {
	return &Builder{fs: fs, root: root}
}

// Fs returns the filesystem the builder works on.
func (b *Builder) Fs() afero.Fs {
	return b.fs
}

// Root returns the archive root.
func (b *Builder) Root() string {
	return b.root
}

// Path returns the local folder for a host's remote folder.
func (b *Builder) Path(host, remoteFolder string) string {
	return filepath.Join(b.root, host, remoteFolder)
}

// HostRoot returns the local folder holding everything archived from host.
func (b *Builder) HostRoot(host string) string {
	return filepath.Join(b.root, host)
}

// Ensure returns the local folder for a host's remote folder, creating it
// if needed.
func (b *Builder) Ensure(host, remoteFolder string) (string, error) {
	folder := b.Path(host, remoteFolder)

	info, err := b.fs.Stat(folder)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", fmt.Errorf("cannot create %s: %w", folder, ErrNotDirectory)
		}
		return folder, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("cannot stat %s: %w", folder, err)
	}

	if err := b.fs.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", folder, err)
	}

	return folder, nil
}

// LocalFile maps a file path reported by a host to its archived copy.
func (b *Builder) LocalFile(host, remotePath string) (string, error) {
	if strings.Contains(remotePath, "..") {
		for _, part := range strings.Split(filepath.ToSlash(remotePath), "/") {
			if part == ".." {
				return "", fmt.Errorf("%s: %w", remotePath, ErrOutsideTree)
			}
		}
	}
	return filepath.Join(b.root, host, remotePath), nil
}

// RemoteFile is the inverse of LocalFile.
func (b *Builder) RemoteFile(host, localPath string) (string, error) {
	hostRoot := b.HostRoot(host)
	rel, err := filepath.Rel(hostRoot, localPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", localPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", localPath, ErrOutsideTree)
	}
	return "/" + filepath.ToSlash(rel), nil
}
