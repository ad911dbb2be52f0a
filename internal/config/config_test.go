package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const validConfig = `
target_folder: /srv/archive
logging: true
log_file:
  stdout: /tmp/hoard.out
  stderr: /tmp/hoard.err
poll_interval: 250ms
timeout: 5m
sources:
  - host: web1
    user: backup
    folder: /var/log/app
    extension: gz
    max_age: 1440
  - host: web2
    user: backup
    folder: /var/log/app
    extension: gz
    max_age: 60
    connection: docker
    env:
      TZ: UTC
`

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantSources int
		wantErr     bool
	}{
		{
			name:        "valid config",
			yaml:        validConfig,
			wantSources: 2,
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name:        "empty document",
			yaml:        ``,
			wantSources: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cfg.Sources) != tt.wantSources {
				t.Errorf("expected %d sources, got %d", tt.wantSources, len(cfg.Sources))
			}
		})
	}
}

func TestParseDurations(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("expected poll_interval 250ms, got %v", cfg.PollInterval)
	}
	if cfg.GetTimeout() != 5*time.Minute {
		t.Errorf("expected timeout 5m, got %v", cfg.GetTimeout())
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
target_folder: /srv
sources:
  - host: a
    folder: /data
    extension: log
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.HashAlgorithm != DefaultHashAlgorithm {
		t.Errorf("expected hash algorithm %q, got %q", DefaultHashAlgorithm, cfg.HashAlgorithm)
	}
	if cfg.VerifyMethod != VerifyStream {
		t.Errorf("expected verify method %q, got %q", VerifyStream, cfg.VerifyMethod)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("expected poll interval %v, got %v", DefaultPollInterval, cfg.PollInterval)
	}
	if cfg.GetTimeout() != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, cfg.GetTimeout())
	}
	if cfg.Sources[0].GetConnection() != ConnectionSSH {
		t.Errorf("expected ssh connection, got %q", cfg.Sources[0].GetConnection())
	}
}

func TestZeroTimeoutDisablesDeadline(t *testing.T) {
	cfg, err := Parse([]byte("target_folder: /srv\ntimeout: 0s\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetTimeout() != 0 {
		t.Errorf("expected zero timeout, got %v", cfg.GetTimeout())
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			TargetFolder: "/srv",
			VerifyMethod: VerifyStream,
			Sources: []*Source{
				{Host: "a", Folder: "/data", Extension: "log", MaxAge: 60},
				{Host: "b", Folder: "/data", Extension: "log", MaxAge: 60},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		is      error
	}{
		{"valid", func(c *Config) {}, false, nil},
		{"missing target", func(c *Config) { c.TargetFolder = "" }, true, nil},
		{"no sources", func(c *Config) { c.Sources = nil }, true, ErrNoSources},
		{"duplicate host", func(c *Config) { c.Sources[1].Host = "a" }, true, ErrDuplicateHost},
		{"missing host", func(c *Config) { c.Sources[0].Host = " " }, true, nil},
		{"missing folder", func(c *Config) { c.Sources[0].Folder = "" }, true, nil},
		{"dotdot folder", func(c *Config) { c.Sources[0].Folder = "/data/../etc" }, true, nil},
		{"missing extension", func(c *Config) { c.Sources[0].Extension = "" }, true, nil},
		{"glob extension", func(c *Config) { c.Sources[0].Extension = "*" }, true, nil},
		{"negative max age", func(c *Config) { c.Sources[0].MaxAge = -1 }, true, nil},
		{"missing max age", func(c *Config) { c.Sources[0].MaxAge = 0 }, true, nil},
		{"host with dotdot path", func(c *Config) { c.Sources[0].Host = "../../etc" }, true, nil},
		{"host with separator", func(c *Config) { c.Sources[0].Host = "web1/logs" }, true, nil},
		{"host with backslash", func(c *Config) { c.Sources[0].Host = `web1\logs` }, true, nil},
		{"host is dot", func(c *Config) { c.Sources[0].Host = "." }, true, nil},
		{"host is dotdot", func(c *Config) { c.Sources[0].Host = ".." }, true, nil},
		{"host looks like option", func(c *Config) { c.Sources[0].Host = "-oProxyCommand=id" }, true, nil},
		{"host with dots", func(c *Config) { c.Sources[0].Host = "web1.example.com" }, false, nil},
		{"ssh options", func(c *Config) { c.Sources[0].SSHOptions = map[string]string{"ConnectTimeout": "10"} }, false, nil},
		{"ssh options on docker", func(c *Config) {
			c.Sources[0].Connection = ConnectionDocker
			c.Sources[0].SSHOptions = map[string]string{"ConnectTimeout": "10"}
		}, true, nil},
		{"bad ssh option name", func(c *Config) { c.Sources[0].SSHOptions = map[string]string{"A=B": "1"} }, true, nil},
		{"docker workdir and env", func(c *Config) {
			c.Sources[0].Connection = ConnectionDocker
			c.Sources[0].Workdir = "/data"
			c.Sources[0].Env = map[string]string{"TZ": "UTC"}
		}, false, nil},
		{"workdir over ssh", func(c *Config) { c.Sources[0].Workdir = "/data" }, true, nil},
		{"bad connection", func(c *Config) { c.Sources[0].Connection = "telnet" }, true, nil},
		{"bad port", func(c *Config) { c.Sources[0].Port = 70000 }, true, nil},
		{"bad verify method", func(c *Config) { c.VerifyMethod = "guess" }, true, nil},
		{"logging without files", func(c *Config) { c.Logging = true }, true, nil},
		{"negative timeout", func(c *Config) { d := -time.Second; c.Timeout = &d }, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected error wrapping %v, got %v", tt.is, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hoard.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("file only", func(t *testing.T) {
		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Path != path {
			t.Errorf("expected path %q, got %q", path, cfg.Path)
		}
		if len(cfg.Sources) != 2 || cfg.Sources[0].Host != "web1" || cfg.Sources[1].Host != "web2" {
			t.Errorf("unexpected sources: %v", cfg.Sources)
		}
		if got := cfg.Sources[1].Env["TZ"]; got != "UTC" {
			t.Errorf("expected docker env TZ=UTC, got %q", got)
		}
	})

	t.Run("with overrides", func(t *testing.T) {
		v := viper.New()
		v.Set("target_folder", "/mnt/other")
		v.Set("logging", false)
		v.Set("timeout", "30s")
		v.Set("hash_algorithm", "SHA256")

		cfg, err := Load(path, v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.TargetFolder != "/mnt/other" {
			t.Errorf("expected overridden target folder, got %q", cfg.TargetFolder)
		}
		if cfg.Logging {
			t.Error("expected logging disabled by override")
		}
		if cfg.GetTimeout() != 30*time.Second {
			t.Errorf("expected 30s timeout, got %v", cfg.GetTimeout())
		}
		if cfg.HashAlgorithm != "sha256" {
			t.Errorf("expected lowercased sha256, got %q", cfg.HashAlgorithm)
		}
	})

	t.Run("bad override", func(t *testing.T) {
		v := viper.New()
		v.Set("poll_interval", "soon")
		if _, err := Load(path, v); err == nil {
			t.Error("expected error for unparsable override")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.yaml"), nil); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestSourceString(t *testing.T) {
	s := &Source{Host: "web1", User: "backup", Folder: "/logs"}
	if got := s.String(); got != "backup@web1:/logs" {
		t.Errorf("unexpected string %q", got)
	}
	s.User = ""
	if got := s.String(); got != "web1:/logs" {
		t.Errorf("unexpected string %q", got)
	}
}
