// Package local provides a connector for sources on the local machine.
package local

import (
	"fmt"
	"os"
	"os/user"

	"github.com/eugenetaranov/hoard/internal/connector"
)

// Connector runs commands on the local machine.
type Connector struct {
	sudo     bool
	sudoUser string
}

// Option configures the local connector.
type Option func(*Connector)

// WithSudo runs commands as another user through sudo.
func WithSudo(user string) Option {
	return func(c *Connector) {
		c.sudo = true
		c.sudoUser = user
	}
}

// New creates a new local connector.
func New(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wrap returns argv unchanged, or prefixed with sudo if configured.
func (c *Connector) Wrap(argv []string) []string {
	if !c.sudo {
		return append([]string(nil), argv...)
	}

	args := []string{"sudo"}
	if c.sudoUser != "" {
		args = append(args, "-u", c.sudoUser)
	}
	args = append(args, "--")
	return append(args, argv...)
}

// RsyncShell returns "" since no remote shell is involved.
func (c *Connector) RsyncShell() string {
	return ""
}

// RsyncSource returns the folder itself.
func (c *Connector) RsyncSource(folder string) string {
	return connector.TrailingSlash(folder)
}

// String returns a description of the connection.
func (c *Connector) String() string {
	u, err := user.Current()
	if err != nil {
		return "local"
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	if c.sudo && c.sudoUser != "" {
		return fmt.Sprintf("local://%s@%s (sudo as %s)", u.Username, hostname, c.sudoUser)
	}
	return fmt.Sprintf("local://%s@%s", u.Username, hostname)
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
