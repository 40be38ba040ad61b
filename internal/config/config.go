// Package config loads mailsnip's settings from an optional file and
// MAILSNIP_ environment variables.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/matta/mailsnip/internal/homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	BackendGmail = "gmail"
	BackendIMAP  = "imap"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"

	EnvPrefix = "MAILSNIP"
)

type IMAP struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
}

type Config struct {
	// Gmail OAuth client secrets file.
	Credentials string `mapstructure:"credentials"`

	// Directory the message files are written to.
	Path string `mapstructure:"path"`

	// Seconds between the end of one tick and the start of the next.
	IntervalSeconds int `mapstructure:"interval"`

	Folder           string `mapstructure:"folder"`
	Backend          string `mapstructure:"backend"`
	FetchConcurrency int    `mapstructure:"fetch_concurrency"`

	TokenStore string `mapstructure:"token_store"`
	TokenFile  string `mapstructure:"token_file"`
	APIKey     string `mapstructure:"api_key"`

	// SQLite journal path; empty disables the journal.
	Journal string `mapstructure:"journal"`

	// Listen address for /metrics; empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Megabytes at which log_file is rotated, and rotated files kept.
	LogMaxSize    int `mapstructure:"log_max_size"`
	LogMaxBackups int `mapstructure:"log_max_backups"`

	IMAP IMAP `mapstructure:"imap"`
}

var defaults = map[string]interface{}{
	"credentials":       "credentials.json",
	"path":              ".",
	"interval":          10,
	"folder":            "INBOX",
	"backend":           BackendGmail,
	"fetch_concurrency": 1,
	"token_store":       TokenStoreFile,
	"token_file":        "~/.mailsnip/token.json",
	"api_key":           "",
	"journal":           "",
	"metrics_addr":      "",
	"log_level":         "info",
	"log_format":        "text",
	"log_file":          "",
	"log_max_size":      1,
	"log_max_backups":   5,
	"imap.host":         "",
	"imap.port":         993,
	"imap.username":     "",
	"imap.password":     "",
	"imap.tls":          true,
}

// Load reads path, whose format follows its extension.  A missing file
// is not an error; the defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !missing(err) {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	cfg.TokenFile = homedir.Expand(cfg.TokenFile)
	cfg.Journal = homedir.Expand(cfg.Journal)
	return cfg, nil
}

func missing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func (c *Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return errors.Errorf("interval must be positive, got %d", c.IntervalSeconds)
	}
	if c.FetchConcurrency <= 0 {
		return errors.Errorf("fetch_concurrency must be positive, got %d", c.FetchConcurrency)
	}
	switch c.Backend {
	case BackendGmail:
	case BackendIMAP:
		if c.IMAP.Host == "" {
			return errors.New("imap.host is required for the imap backend")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	switch c.TokenStore {
	case TokenStoreFile, TokenStoreKeyring:
	default:
		return errors.Errorf("unknown token_store %q", c.TokenStore)
	}
	if c.LogMaxSize <= 0 {
		return errors.Errorf("log_max_size must be positive, got %d", c.LogMaxSize)
	}
	if c.LogMaxBackups < 0 {
		return errors.Errorf("log_max_backups must not be negative, got %d", c.LogMaxBackups)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
