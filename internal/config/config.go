// Package config defines the structure and loading of hoard configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in the configuration file.
const (
	DefaultHashAlgorithm = "md5"
	DefaultVerifyMethod  = VerifyStream
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultTimeout       = time.Hour
)

// Verification methods.
const (
	// VerifyStream recomputes local hashes in-process.
	VerifyStream = "stream"

	// VerifySweep runs the hash tool locally as an external batch.
	VerifySweep = "sweep"
)

// Connection types for a source host.
const (
	ConnectionSSH    = "ssh"
	ConnectionDocker = "docker"
	ConnectionLocal  = "local"
)

var (
	// ErrDuplicateHost is returned when two sources share a host.
	ErrDuplicateHost = errors.New("duplicate host")

	// ErrNoSources is returned when the configuration lists no sources.
	ErrNoSources = errors.New("no sources configured")
)

// Source describes one host to archive from.
type Source struct {
	// Host is the hostname, address or container name of the source.
	Host string `yaml:"host"`

	// User is the login user on the source host.
	User string `yaml:"user"`

	// Folder is the remote folder to archive.
	Folder string `yaml:"folder"`

	// Extension filters archived and cleaned files (without the dot).
	Extension string `yaml:"extension"`

	// MaxAge is the age in minutes after which verified files are removed.
	MaxAge int `yaml:"max_age"`

	// Connection specifies how to reach the host (ssh, docker, local).
	Connection string `yaml:"connection"`

	// Port is the SSH port (ssh connection only).
	Port int `yaml:"port"`

	// IdentityFile is the SSH private key (ssh connection only).
	IdentityFile string `yaml:"identity_file"`

	// SSHOptions are extra -o client options (ssh connection only).
	SSHOptions map[string]string `yaml:"ssh_options"`

	// Workdir is the working directory inside the container (docker only).
	Workdir string `yaml:"workdir"`

	// Env holds environment variables set inside the container (docker only).
	Env map[string]string `yaml:"env"`
}

// LogFiles holds the paths of the result log sinks.
type LogFiles struct {
	Stdout string `yaml:"stdout"`
	Stderr string `yaml:"stderr"`
}

// Config is the complete hoard configuration.
type Config struct {
	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`

	// TargetFolder is the root of the local archive tree.
	TargetFolder string `yaml:"target_folder"`

	// Sources is the list of hosts to archive from.
	Sources []*Source `yaml:"sources"`

	// Logging enables the result log files.
	Logging bool `yaml:"logging"`

	// LogFile holds the log file paths used when Logging is set.
	LogFile LogFiles `yaml:"log_file"`

	// HashAlgorithm names the checksum algorithm (md5, sha1, sha256, sha512).
	HashAlgorithm string `yaml:"hash_algorithm"`

	// VerifyMethod selects how local hashes are obtained (stream, sweep).
	VerifyMethod string `yaml:"verify_method"`

	// PollInterval is the pause between process status sweeps.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout is the per-process deadline; zero disables it.
	Timeout *time.Duration `yaml:"timeout"`
}

// GetConnection returns the connection type, defaulting to "ssh".
func (s *Source) GetConnection() string {
	if s.Connection == "" {
		return ConnectionSSH
	}
	return s.Connection
}

// Validate checks the source for common errors.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("source is missing required 'host' field")
	}
	if err := validateHost(s.Host); err != nil {
		return err
	}
	if s.Folder == "" {
		return fmt.Errorf("source is missing required 'folder' field")
	}
	if strings.Contains(s.Folder, "..") {
		return fmt.Errorf("invalid folder path: %s", s.Folder)
	}
	if s.Extension == "" {
		return fmt.Errorf("source is missing required 'extension' field")
	}
	if strings.ContainsAny(s.Extension, "/*?[") {
		return fmt.Errorf("invalid extension: %s", s.Extension)
	}
	if s.MaxAge <= 0 {
		return fmt.Errorf("source is missing required 'max_age' field (minutes, must be positive)")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}

	switch s.GetConnection() {
	case ConnectionSSH, ConnectionDocker, ConnectionLocal:
		// Valid
	default:
		return fmt.Errorf("invalid connection type: %s (must be ssh, docker, or local)", s.Connection)
	}

	if len(s.SSHOptions) > 0 && s.GetConnection() != ConnectionSSH {
		return fmt.Errorf("ssh_options requires an ssh connection")
	}
	for k := range s.SSHOptions {
		if k == "" || strings.ContainsAny(k, "= ") {
			return fmt.Errorf("invalid ssh option name: %q", k)
		}
	}
	if (s.Workdir != "" || len(s.Env) > 0) && s.GetConnection() != ConnectionDocker {
		return fmt.Errorf("workdir and env require a docker connection")
	}

	return nil
}

// validateHost rejects host names that would escape the archive root or be
// read as a client option.
func validateHost(host string) error {
	switch {
	case host == "." || host == "..":
		return fmt.Errorf("invalid host: %q", host)
	case strings.ContainsAny(host, `/\`):
		return fmt.Errorf("invalid host %q: contains a path separator", host)
	case strings.HasPrefix(host, "-"):
		return fmt.Errorf("invalid host %q: starts with '-'", host)
	}
	return nil
}

// String returns a short description of the source.
func (s *Source) String() string {
	if s.User != "" {
		return fmt.Sprintf("%s@%s:%s", s.User, s.Host, s.Folder)
	}
	return fmt.Sprintf("%s:%s", s.Host, s.Folder)
}

// GetTimeout returns the per-process deadline, defaulting to one hour.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout == nil {
		return DefaultTimeout
	}
	return *c.Timeout
}

// ApplyDefaults fills empty optional fields.
func (c *Config) ApplyDefaults() {
	if c.HashAlgorithm == "" {
		c.HashAlgorithm = DefaultHashAlgorithm
	}
	if c.VerifyMethod == "" {
		c.VerifyMethod = DefaultVerifyMethod
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	c.HashAlgorithm = strings.ToLower(c.HashAlgorithm)
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.TargetFolder == "" {
		return fmt.Errorf("configuration is missing required 'target_folder' field")
	}
	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	switch c.VerifyMethod {
	case VerifyStream, VerifySweep:
		// Valid
	default:
		return fmt.Errorf("invalid verify_method: %s (must be stream or sweep)", c.VerifyMethod)
	}

	if c.Timeout != nil && *c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	if c.Logging {
		if c.LogFile.Stdout == "" || c.LogFile.Stderr == "" {
			return fmt.Errorf("logging is enabled but log_file.stdout or log_file.stderr is missing")
		}
	}

	seen := make(map[string]int, len(c.Sources))
	for i, s := range c.Sources {
		if s == nil {
			return fmt.Errorf("source %d: empty entry", i+1)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("source %d: %w", i+1, err)
		}
		if first, ok := seen[s.Host]; ok {
			return fmt.Errorf("source %d: %w %q (first defined as source %d)", i+1, ErrDuplicateHost, s.Host, first+1)
		}
		seen[s.Host] = i
	}

	return nil
}

// ParseFile parses a configuration from a YAML file.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}

	cfg.Path = path
	return cfg, nil
}

// Parse parses a configuration from YAML data without validating it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	return &cfg, nil
}

// Load reads, overrides, defaults and validates a configuration file.
// A nil v skips environment overrides.
func Load(path string, v *viper.Viper) (*Config, error) {
	cfg, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	if v != nil {
		if err := ApplyOverrides(cfg, v); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyOverrides copies values set in v over the file configuration.
func ApplyOverrides(cfg *Config, v *viper.Viper) error {
	if s := v.GetString("target_folder"); s != "" {
		cfg.TargetFolder = s
	}
	if s := v.GetString("hash_algorithm"); s != "" {
		cfg.HashAlgorithm = s
	}
	if s := v.GetString("verify_method"); s != "" {
		cfg.VerifyMethod = s
	}
	if v.IsSet("logging") {
		cfg.Logging = v.GetBool("logging")
	}
	if s := v.GetString("poll_interval"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid poll_interval override %q: %w", s, err)
		}
		cfg.PollInterval = d
	}
	if s := v.GetString("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid timeout override %q: %w", s, err)
		}
		cfg.Timeout = &d
	}
	return nil
}
