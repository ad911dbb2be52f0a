// Package command builds the external command line for each operation kind.
package command

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/eugenetaranov/hoard/internal/checksum"
	"github.com/eugenetaranov/hoard/internal/config"
	"github.com/eugenetaranov/hoard/internal/connector"
	"github.com/eugenetaranov/hoard/internal/connector/docker"
	"github.com/eugenetaranov/hoard/internal/connector/local"
	"github.com/eugenetaranov/hoard/internal/connector/ssh"
)

// Kind identifies an operation; it also names the result namespace.
type Kind string

// Operation kinds.
const (
	Archive        Kind = "archive"
	Clean          Kind = "clean"
	LocalChecksum  Kind = "localchecksum"
	RemoteChecksum Kind = "remotechecksum"
)

// ErrUnknownKind is returned for a kind with no registered builder.
var ErrUnknownKind = errors.New("unknown operation kind")

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// Target carries everything a builder needs for one host.
type Target struct {
	// Source is the host descriptor.
	Source *config.Source

	// LocalPath is the host's folder in the archive tree.
	LocalPath string

	// Algorithm is the checksum algorithm for checksum kinds.
	Algorithm checksum.Algorithm
}

// Command is a ready-to-run external invocation.
type Command struct {
	Kind Kind
	Host string
	Args []string
}

// String returns the command as a quoted shell line, for display only.
func (c *Command) String() string {
	return connector.ShellJoin(c.Args)
}

// BuilderFunc returns the argv for one kind and target.
type BuilderFunc func(t Target) ([]string, error)

// registry holds the builder for each kind.
var (
	registry   = make(map[Kind]BuilderFunc)
	registryMu sync.RWMutex
)

// Register adds a builder for kind.
// It panics if a builder for the same kind is already registered.
func Register(kind Kind, fn BuilderFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("command kind %q is already registered", kind))
	}
	registry[kind] = fn
}

// Kinds returns the registered kinds, sorted.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Build returns the command for kind on target.
func Build(kind Kind, t Target) (*Command, error) {
	registryMu.RLock()
	fn, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if t.Source == nil {
		return nil, fmt.Errorf("%s: missing source", kind)
	}

	args, err := fn(t)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, t.Source.Host, err)
	}

	return &Command{Kind: kind, Host: t.Source.Host, Args: args}, nil
}

// ConnectorFor returns the connector reaching a source.
func ConnectorFor(src *config.Source) (connector.Connector, error) {
	switch src.GetConnection() {
	case config.ConnectionSSH:
		var opts []ssh.Option
		if src.User != "" {
			opts = append(opts, ssh.WithUser(src.User))
		}
		if src.Port != 0 {
			opts = append(opts, ssh.WithPort(src.Port))
		}
		if src.IdentityFile != "" {
			opts = append(opts, ssh.WithIdentityFile(src.IdentityFile))
		}
		for _, k := range sortedKeys(src.SSHOptions) {
			opts = append(opts, ssh.WithOption(k, src.SSHOptions[k]))
		}
		return ssh.New(src.Host, opts...), nil

	case config.ConnectionDocker:
		// For docker, host is the container name/ID
		var opts []docker.Option
		if src.User != "" {
			opts = append(opts, docker.WithUser(src.User))
		}
		if src.Workdir != "" {
			opts = append(opts, docker.WithWorkdir(src.Workdir))
		}
		for k, v := range src.Env {
			opts = append(opts, docker.WithEnv(k, v))
		}
		return docker.New(src.Host, opts...), nil

	case config.ConnectionLocal:
		var opts []local.Option
		if src.User != "" {
			opts = append(opts, local.WithSudo(src.User))
		}
		return local.New(opts...), nil

	default:
		return nil, fmt.Errorf("unknown connection type: %s", src.Connection)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
