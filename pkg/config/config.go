package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const defaultConfigFileName = "gencod.toml"

// Provider names the service can route to. Order matters for keys-check
// default output.
var KnownProviders = []string{
	"gemini", "openai", "openrouter", "groq", "cohere", "huggingface", "together", "deepseek",
}

func IsKnownProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

type TLSConfig struct {
	Enabled  bool   `toml:"enabled"`
	Domain   string `toml:"domain"`
	Email    string `toml:"email"`
	CacheDir string `toml:"cache_dir"`
}

// Config is the read-only runtime context handed to the resolver, auth gate
// and router. File-backed settings come from TOML; secrets and credentials
// come from the environment through LookupEnv so precedence stays testable
// without mutating the process env.
type Config struct {
	ListenAddr             string    `toml:"listen_addr"`
	AllowedOrigins         []string  `toml:"allowed_origins"`
	RedisAddr              string    `toml:"redis_addr"`
	KeyStorePath           string    `toml:"key_store_path"`
	ProviderTimeoutSeconds int       `toml:"provider_timeout_seconds"`
	LogLevel               string    `toml:"log_level"`
	TLS                    TLSConfig `toml:"tls"`

	LookupEnv func(string) string `toml:"-"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "genco", defaultConfigFileName)
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", "genco", "tls-autocert")
}

func NewDefault() *Config {
	return &Config{
		ListenAddr:             "127.0.0.1:8787",
		ProviderTimeoutSeconds: 90,
		LogLevel:               "info",
		TLS: TLSConfig{
			Enabled:  false,
			CacheDir: DefaultTLSCacheDir(),
		},
		LookupEnv: os.Getenv,
	}
}

func Load(path string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrCreate(path string) (*Config, error) {
	cfg := NewDefault()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := marshalTOML(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func (c *Config) Normalize() {
	if c.LookupEnv == nil {
		c.LookupEnv = os.Getenv
	}
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8787"
	}
	c.RedisAddr = strings.TrimSpace(c.RedisAddr)
	c.KeyStorePath = strings.TrimSpace(c.KeyStorePath)
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.ProviderTimeoutSeconds <= 0 {
		c.ProviderTimeoutSeconds = 90
	}
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
}

func (c *Config) Validate() error {
	if c.RedisAddr != "" && c.KeyStorePath != "" {
		return errors.New("redis_addr and key_store_path are mutually exclusive")
	}
	if c.TLS.Enabled && c.TLS.Domain == "" {
		return errors.New("tls.domain is required when tls.enabled=true")
	}
	return nil
}

// Env returns the trimmed value of an environment-backed setting.
func (c *Config) Env(name string) string {
	if c.LookupEnv == nil {
		return strings.TrimSpace(os.Getenv(name))
	}
	return strings.TrimSpace(c.LookupEnv(name))
}

// SigningSecret is the JWT signing secret. ADMIN_JWT_SECRET is canonical;
// JWT_SECRET is honored as a dev fallback.
func (c *Config) SigningSecret() string {
	if s := c.Env("ADMIN_JWT_SECRET"); s != "" {
		return s
	}
	return c.Env("JWT_SECRET")
}

// AdminToken is the legacy static bearer secret used when no signing secret
// is configured.
func (c *Config) AdminToken() string {
	return c.Env("ADMIN_API_TOKEN")
}

// OriginAllowlist returns the CORS allow-list. The ALLOWED_ORIGINS
// environment variable (comma-separated) overrides the config file. An empty
// list means all origins are permitted (development default).
func (c *Config) OriginAllowlist() []string {
	raw := c.Env("ALLOWED_ORIGINS")
	if raw == "" {
		return c.AllowedOrigins
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}
