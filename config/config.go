// Package config loads the service settings from defaults, an optional YAML
// file, a .env file and LIBRARY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where config init writes and where Load looks when no path
// is given.
const DefaultPath = "library.yml"

// EnvPrefix prefixes every environment override, e.g. LIBRARY_SERVER_ADDR.
const EnvPrefix = "LIBRARY"

// Config is the top-level service configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	AMQP     AMQPConfig     `mapstructure:"amqp" yaml:"amqp"`
	ISBN     ISBNConfig     `mapstructure:"isbn" yaml:"isbn"`
	PDF      PDFConfig      `mapstructure:"pdf" yaml:"pdf"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr" yaml:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// AuthConfig controls login. AutoProvision lets staff addresses of
// AdminDomain create their own admin account on first login.
type AuthConfig struct {
	AutoProvision bool          `mapstructure:"auto_provision" yaml:"auto_provision"`
	AdminDomain   string        `mapstructure:"admin_domain" yaml:"admin_domain"`
	SessionTTL    time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	SecureCookie  bool          `mapstructure:"secure_cookie" yaml:"secure_cookie"`
}

// AMQPConfig points at the broker for domain events. An empty URL disables
// publishing.
type AMQPConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

type ISBNConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
	NDLURL    string        `mapstructure:"ndl_url" yaml:"ndl_url"`
	OpenBDURL string        `mapstructure:"openbd_url" yaml:"openbd_url"`
	GoogleURL string        `mapstructure:"google_url" yaml:"google_url"`
}

// PDFConfig names a TrueType font with Japanese glyphs. Without one the
// reports fall back to a core font.
type PDFConfig struct {
	FontPath string `mapstructure:"font_path" yaml:"font_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "library.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("auth.auto_provision", false)
	v.SetDefault("auth.admin_domain", "seiei.ac.jp")
	v.SetDefault("auth.session_ttl", 720*time.Hour)
	v.SetDefault("auth.secure_cookie", false)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "library.events")
	v.SetDefault("isbn.timeout", 10*time.Second)
	v.SetDefault("isbn.cache_size", 256)
	v.SetDefault("isbn.ndl_url", "https://ndlsearch.ndl.go.jp/api/opensearch")
	v.SetDefault("isbn.openbd_url", "https://api.openbd.jp/v1/get")
	v.SetDefault("isbn.google_url", "https://www.googleapis.com/books/v1/volumes")
	v.SetDefault("pdf.font_path", "")
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the config at path. A missing file is fine; the defaults and
// the environment still apply. A .env file in the working directory is
// loaded first without overriding variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("config: database.path is required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("config: auth.session_ttl must be positive")
	}
	if c.ISBN.CacheSize <= 0 {
		return errors.New("config: isbn.cache_size must be positive")
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return enc.Close()
}
