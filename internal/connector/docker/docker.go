// Package docker provides a connector for sources inside Docker containers.
package docker

import (
	"fmt"
	"sort"

	"github.com/eugenetaranov/hoard/internal/connector"
)

// Connector runs commands inside a Docker container via docker exec.
type Connector struct {
	container string
	user      string
	workdir   string
	env       map[string]string
}

// Option configures the Docker connector.
type Option func(*Connector)

// WithUser sets the user for command execution.
func WithUser(user string) Option {
	return func(c *Connector) {
		c.user = user
	}
}

// WithWorkdir sets the working directory for command execution.
func WithWorkdir(dir string) Option {
	return func(c *Connector) {
		c.workdir = dir
	}
}

// WithEnv adds an environment variable for command execution.
func WithEnv(key, value string) Option {
	return func(c *Connector) {
		if c.env == nil {
			c.env = make(map[string]string)
		}
		c.env[key] = value
	}
}

// New creates a new Docker connector for the specified container.
func New(container string, opts ...Option) *Connector {
	c := &Connector{
		container: container,
		env:       make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Wrap builds the docker exec invocation for argv. Arguments are passed
// through as-is, no shell is involved.
func (c *Connector) Wrap(argv []string) []string {
	args := append([]string{"docker"}, c.execFlags()...)
	args = append(args, c.container)
	return append(args, argv...)
}

// execFlags builds the docker exec flags shared by Wrap and RsyncShell.
func (c *Connector) execFlags() []string {
	args := []string{"exec", "-i"}

	if c.user != "" {
		args = append(args, "-u", c.user)
	}

	if c.workdir != "" {
		args = append(args, "-w", c.workdir)
	}

	// Sorted for a stable command line.
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, c.env[k]))
	}

	return args
}

// RsyncShell returns "docker exec -i [...]" so that rsync spawns its server
// side inside the container.
func (c *Connector) RsyncShell() string {
	return connector.ShellJoin(append([]string{"docker"}, c.execFlags()...))
}

// RsyncSource returns container:folder/. The user is carried by the shell
// flags because rsync would otherwise pass it as "-l user".
func (c *Connector) RsyncSource(folder string) string {
	return c.container + ":" + connector.TrailingSlash(folder)
}

// String returns a description of the connection.
func (c *Connector) String() string {
	desc := fmt.Sprintf("docker://%s", c.container)
	if c.user != "" {
		desc = fmt.Sprintf("docker://%s@%s", c.user, c.container)
	}
	return desc
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
