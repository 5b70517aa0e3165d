// Package config loads the server configuration from a TOML file and
// applies command line overrides on top.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/willibrandon/gonuget-server/auth"
)

// Config is the full configuration tree. Zero values are filled with
// defaults by Load, so a partial file is enough.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Server  ServerConfig  `toml:"server"`
	Web     WebConfig     `toml:"web"`
	Auth    AuthConfig    `toml:"auth"`
	Log     LogConfig     `toml:"log"`
}

// BackendConfig selects the database and the archive store location.
// Migrations names an optional directory of extra SQL statements run
// after the built-in schema bootstrap.
type BackendConfig struct {
	DBURL      string `toml:"db_url"`
	Storage    string `toml:"storage"`
	Migrations string `toml:"migrations"`
}

// ServerConfig is the listener setup. HTTPS is optional.
type ServerConfig struct {
	Port  uint16       `toml:"port"`
	HTTPS *HTTPSConfig `toml:"https"`
}

// HTTPSConfig points at a certificate and key pair in PEM format.
type HTTPSConfig struct {
	Certificate string `toml:"certificate"`
	Key         string `toml:"key"`
}

// WebConfig tunes the HTTP surface.
type WebConfig struct {
	MaxUploadFilesizeMB uint32 `toml:"max_upload_filesize_mb"`
	Resources           string `toml:"resources"`
}

// AuthConfig configures user authentication. A nil LDAP section leaves
// only Plain-provider accounts.
type AuthConfig struct {
	LDAP                *auth.LDAPConfig `toml:"ldap"`
	SuperuserPassword   string           `toml:"superuser_password"`
	CookieKey           string           `toml:"cookie_key"`
	OpenForRegistration bool             `toml:"open_for_registration"`
	Mail                *MailConfig      `toml:"mail"`
}

// MailConfig describes the SMTP relay for mail confirmation. The feed
// runs without one; accounts are then confirmed on creation.
type MailConfig struct {
	Hostname        string  `toml:"hostname"`
	Port            *uint16 `toml:"port"`
	HelloName       string  `toml:"hello_name"`
	MailAddress     string  `toml:"mail_address"`
	Username        *string `toml:"username"`
	Password        string  `toml:"password"`
	UTF8            bool    `toml:"utf8"`
	Encrypt         *bool   `toml:"encrypt"`
	Authentication  *string `toml:"authentication"`
	FullnameWebsite string  `toml:"fullname_website"`
	DomainWebsite   string  `toml:"domain_website"`
}

// LogConfig selects sinks and verbosity (0 quietest, 4 loudest).
type LogConfig struct {
	Logfile   string `toml:"logfile"`
	Quiet     bool   `toml:"quiet"`
	Verbosity uint8  `toml:"verbosity"`
}

// Default returns the configuration used when no file entry overrides
// a value.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			DBURL:      "sqlite://./feed.db",
			Storage:    ".",
			Migrations: "./migrations",
		},
		Server: ServerConfig{Port: 8080},
		Web: WebConfig{
			MaxUploadFilesizeMB: 10,
			Resources:           "./resources",
		},
		Auth: AuthConfig{
			SuperuserPassword:   "admin",
			CookieKey:           randomKey(),
			OpenForRegistration: true,
		},
		Log: LogConfig{Verbosity: 1},
	}
}

// Load reads path and decodes it over the defaults. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Backend.DBURL == "" {
		return fmt.Errorf("backend.db_url must not be empty")
	}
	if c.Backend.Storage == "" {
		return fmt.Errorf("backend.storage must not be empty")
	}
	if c.Server.HTTPS != nil && (c.Server.HTTPS.Certificate == "" || c.Server.HTTPS.Key == "") {
		return fmt.Errorf("server.https needs both certificate and key")
	}
	if c.Log.Verbosity > 4 {
		return fmt.Errorf("log.verbosity must be between 0 and 4")
	}
	if c.Auth.Mail != nil {
		if c.Auth.Mail.Hostname == "" || c.Auth.Mail.MailAddress == "" {
			return fmt.Errorf("auth.mail needs hostname and mail_address")
		}
		if a := c.Auth.Mail.Authentication; a != nil && *a != "Plain" && *a != "CramMd5" {
			return fmt.Errorf("auth.mail.authentication must be Plain or CramMd5")
		}
	}
	return nil
}

// MaxUploadBytes converts the configured megabyte limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Web.MaxUploadFilesizeMB) << 20
}

func randomKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
