// Package ssh provides a connector for sources reached with the ssh client.
package ssh

import (
	"fmt"
	"strconv"

	"github.com/eugenetaranov/hoard/internal/connector"
)

// Connector runs commands on a remote host through the OpenSSH client.
type Connector struct {
	host         string
	user         string
	port         int
	identityFile string
	options      []string
}

// Option configures the SSH connector.
type Option func(*Connector)

// WithUser sets the login user.
func WithUser(user string) Option {
	return func(c *Connector) {
		c.user = user
	}
}

// WithPort sets a non-default SSH port.
func WithPort(port int) Option {
	return func(c *Connector) {
		c.port = port
	}
}

// WithIdentityFile sets the private key passed with -i.
func WithIdentityFile(path string) Option {
	return func(c *Connector) {
		c.identityFile = path
	}
}

// WithOption adds a -o key=value client option.
func WithOption(key, value string) Option {
	return func(c *Connector) {
		c.options = append(c.options, key+"="+value)
	}
}

// New creates a new SSH connector for host. Batch mode is always on so a
// missing key fails instead of waiting on a password prompt.
func New(host string, opts ...Option) *Connector {
	c := &Connector{
		host:    host,
		options: []string{"BatchMode=yes"},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// destination returns user@host or host.
func (c *Connector) destination() string {
	if c.user != "" {
		return c.user + "@" + c.host
	}
	return c.host
}

// clientArgs returns ssh and its flags, without the destination.
func (c *Connector) clientArgs() []string {
	args := []string{"ssh"}
	for _, o := range c.options {
		args = append(args, "-o", o)
	}
	if c.port != 0 {
		args = append(args, "-p", strconv.Itoa(c.port))
	}
	if c.identityFile != "" {
		args = append(args, "-i", c.identityFile)
	}
	return args
}

// Wrap builds the ssh invocation for argv. The remote side hands the command
// to a shell, so every argument is quoted individually.
func (c *Connector) Wrap(argv []string) []string {
	args := append(c.clientArgs(), c.destination())
	return append(args, connector.ShellJoin(argv))
}

// RsyncShell returns the ssh command line rsync should use.
func (c *Connector) RsyncShell() string {
	return connector.ShellJoin(c.clientArgs())
}

// RsyncSource returns [user@]host:folder/.
func (c *Connector) RsyncSource(folder string) string {
	return c.destination() + ":" + connector.TrailingSlash(folder)
}

// String returns a description of the connection.
func (c *Connector) String() string {
	if c.port != 0 {
		return fmt.Sprintf("ssh://%s:%d", c.destination(), c.port)
	}
	return fmt.Sprintf("ssh://%s", c.destination())
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
