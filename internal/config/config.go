// Package config loads maga settings from defaults, a YAML file, MAGA_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maga/internal/logging"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	dirName   = ".maga"
	fileName  = "config.yaml"
	envPrefix = "MAGA"
)

type Config struct {
	Client ClientConfig `mapstructure:"client"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

type ClientConfig struct {
	Key      string        `mapstructure:"key"`
	Secret   string        `mapstructure:"secret"`
	Host     string        `mapstructure:"host"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Required bool          `mapstructure:"required"`
	// InsecureSkipVerify disables TLS verification for self-signed gateways.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// KeyEntry registers one application with the gateway. Entries are a list
// because appkeys may contain characters viper treats as key delimiters.
type KeyEntry struct {
	AppKey string `mapstructure:"appkey"`
	Secret string `mapstructure:"secret"`
}

type ServerConfig struct {
	Listen    string     `mapstructure:"listen"`
	Keystore  []KeyEntry `mapstructure:"keystore"`
	RedisURL  string     `mapstructure:"redis_url"`
	RedisHash string     `mapstructure:"redis_hash"`
	// RateLimit is requests per second per appkey; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
	Prefix string `mapstructure:"prefix"`
}

type LoadOptions struct {
	// ConfigFile is an explicit path; when empty ResolveConfigPath decides.
	ConfigFile string
	// Flags, when set, override file and env values for the flags the user
	// actually passed.
	Flags *pflag.FlagSet
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"key":        "client.key",
	"secret":     "client.secret",
	"host":       "client.host",
	"timeout":    "client.timeout",
	"insecure":   "client.insecure_skip_verify",
	"level":      "log.level",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
	"listen":     "server.listen",
	"redis-url":  "server.redis_url",
	"redis-hash": "server.redis_hash",
	"rate-limit": "server.rate_limit",
	"rate-burst": "server.rate_burst",
}

var (
	ErrMissingClientKey    = errors.New("config: client.key is required")
	ErrMissingClientSecret = errors.New("config: client.secret is required")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.key", "")
	v.SetDefault("client.secret", "")
	v.SetDefault("client.host", "https://wx-maga.aligames.com")
	v.SetDefault("client.timeout", 5*time.Second)
	v.SetDefault("client.required", true)
	v.SetDefault("client.insecure_skip_verify", false)

	v.SetDefault("server.listen", ":8090")
	v.SetDefault("server.keystore", []KeyEntry{})
	v.SetDefault("server.redis_url", "")
	v.SetDefault("server.redis_hash", "maga:keystore")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.prefix", "MAGA")
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := ResolveConfigPath(opts.ConfigFile)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if opts.ConfigFile != "" {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			f := opts.Flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("config: unsupported log.level %q", c.Log.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}

	if c.Client.Key != "" && c.Client.Secret == "" {
		return ErrMissingClientSecret
	}
	if c.Client.Timeout < 0 {
		return errors.New("config: client.timeout must not be negative")
	}
	if c.Client.Host != "" {
		u, err := url.Parse(c.Client.Host)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: client.host %q is not an absolute URL", c.Client.Host)
		}
	}

	seen := make(map[string]struct{}, len(c.Server.Keystore))
	for i, e := range c.Server.Keystore {
		if strings.TrimSpace(e.AppKey) == "" || e.Secret == "" {
			return fmt.Errorf("config: server.keystore[%d] needs appkey and secret", i)
		}
		if _, dup := seen[e.AppKey]; dup {
			return fmt.Errorf("config: server.keystore has duplicate appkey %q", e.AppKey)
		}
		seen[e.AppKey] = struct{}{}
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("config: server.rate_limit and server.rate_burst must not be negative")
	}
	return nil
}

// ValidateClient checks the settings needed to send requests.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Client.Key) == "" {
		return ErrMissingClientKey
	}
	if c.Client.Secret == "" {
		return ErrMissingClientSecret
	}
	return nil
}

// Keys returns the static keystore as appkey -> secret.
func (c *Config) Keys() map[string]string {
	out := make(map[string]string, len(c.Server.Keystore))
	for _, e := range c.Server.Keystore {
		out[e.AppKey] = e.Secret
	}
	return out
}

// ResolveConfigPath returns explicit when set. Otherwise it searches from
// the working directory upwards for .maga/config.yaml, stopping at the
// project root (the first directory holding .git), and falls back to
// DefaultConfigPath.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	wd, err := os.Getwd()
	if err != nil {
		return DefaultConfigPath()
	}
	for dir := wd; ; {
		candidate := filepath.Join(dir, dirName, fileName)
		if fileExists(candidate) {
			return candidate
		}
		if fileExists(filepath.Join(dir, ".git")) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return DefaultConfigPath()
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(dirName, fileName)
	}
	return filepath.Join(home, dirName, fileName)
}

// ApplyFile validates src and installs it at dst.
func ApplyFile(src, dst string) error {
	cfg, err := Load(LoadOptions{ConfigFile: src})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(dst, b, 0o600)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
