// Package config handles TOML/YAML configuration loading, deployment profiles and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/storefront-proxy/config.toml",
	"configs/config.toml",
	"configs/config.yaml",
}

// Deployment profiles.
const (
	ProfileFull = "full"
	ProfileLite = "lite"
)

type profileDefaults struct {
	timeoutSeconds int
	staticEnabled  bool
}

var profiles = map[string]profileDefaults{
	ProfileFull: {timeoutSeconds: 30, staticEnabled: true},
	ProfileLite: {timeoutSeconds: 10, staticEnabled: false},
}

// DefaultRoutes is the route table used when the config file declares none.
var DefaultRoutes = []RouteConfig{
	{Prefix: "/api/product", Origin: "http://localhost:31309"},
	{Prefix: "/api/inventory", Origin: "http://localhost:31081"},
	{Prefix: "/api/order", Origin: "http://localhost:31004"},
}

// reservedPaths are served by the proxy itself and cannot host metrics.
var reservedPaths = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Profile    string `kong:"help='Deployment profile: full|lite (overrides config).',env='PROXY_PROFILE'"`
	StaticRoot string `kong:"help='Directory served for non-API paths (overrides config).',env='STATIC_ROOT'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	ListenPort int `kong:"arg,optional,name='listen-port',help='Listen port; takes precedence over --port.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Upstream UpstreamConfig `toml:"upstream" yaml:"upstream"`
	Routes   []RouteConfig  `toml:"routes" yaml:"routes"`
	Static   StaticConfig   `toml:"static" yaml:"static"`
	CORS     CORSConfig     `toml:"cors" yaml:"cors"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host" yaml:"host"`
	Port         int    `toml:"port" yaml:"port"` // 0 means "use default" (8080)
	BodyMaxBytes int64  `toml:"body_max_bytes" yaml:"body_max_bytes"`
	APIPrefix    string `toml:"api_prefix" yaml:"api_prefix"`
	Profile      string `toml:"profile" yaml:"profile"`
}

// UpstreamConfig holds outbound call settings.
type UpstreamConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent" yaml:"user_agent"`
}

// RouteConfig maps a path prefix to a backend origin (scheme://host:port).
type RouteConfig struct {
	Prefix string `toml:"prefix" yaml:"prefix"`
	Origin string `toml:"origin" yaml:"origin"`
}

// StaticConfig controls file serving for non-API paths.
type StaticConfig struct {
	Enabled *bool  `toml:"enabled" yaml:"enabled"` // nil means "profile default"
	Root    string `toml:"root" yaml:"root"`
	NoCache bool   `toml:"no_cache" yaml:"no_cache"`
}

// CORSConfig holds the headers emitted on every response.
type CORSConfig struct {
	AllowOrigin  string `toml:"allow_origin" yaml:"allow_origin"`
	AllowMethods string `toml:"allow_methods" yaml:"allow_methods"`
	AllowHeaders string `toml:"allow_headers" yaml:"allow_headers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Load reads the config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), the search
// paths are tried in order; if none exists the embedded defaults are used.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// decodeFile parses path as YAML for .yaml/.yml extensions and as TOML otherwise.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.ListenPort != 0 {
		c.Server.Port = cli.ListenPort
	}
	if cli.Profile != "" {
		c.Server.Profile = cli.Profile
	}
	if cli.StaticRoot != "" {
		c.Static.Root = cli.StaticRoot
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// setDefaults fills zero-valued fields. Profile-dependent fields (upstream
// timeout, static serving) take the values of the selected profile.
func (c *Config) setDefaults() {
	c.Server.Profile = strings.ToLower(c.Server.Profile)
	if c.Server.Profile == "" {
		c.Server.Profile = ProfileFull
	}
	pd, ok := profiles[c.Server.Profile]
	if !ok {
		pd = profiles[ProfileFull]
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = "/api/"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = pd.timeoutSeconds
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "storefront-proxy/1.0"
	}

	if len(c.Routes) == 0 {
		c.Routes = append([]RouteConfig(nil), DefaultRoutes...)
	}
	for i := range c.Routes {
		c.Routes[i].Origin = strings.TrimRight(c.Routes[i].Origin, "/")
	}

	if c.Static.Enabled == nil {
		enabled := pd.staticEnabled
		c.Static.Enabled = &enabled
	}
	if c.Static.Root == "" {
		c.Static.Root = "."
	}

	if c.CORS.AllowOrigin == "" {
		c.CORS.AllowOrigin = "*"
	}
	if c.CORS.AllowMethods == "" {
		c.CORS.AllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if c.CORS.AllowHeaders == "" {
		c.CORS.AllowHeaders = "Content-Type, Authorization"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if _, ok := profiles[c.Server.Profile]; !ok {
		return fmt.Errorf("server.profile must be one of: full, lite; got %q", c.Server.Profile)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}

	p := c.Server.APIPrefix
	if !strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/") {
		return fmt.Errorf("server.api_prefix must start and end with '/'; got %q", p)
	}

	if err := c.validateRoutes(); err != nil {
		return err
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		mp := c.Metrics.Path
		if mp[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", mp)
		}
		if strings.HasPrefix(mp, c.Server.APIPrefix) || mp+"/" == c.Server.APIPrefix {
			return fmt.Errorf("metrics.path %q conflicts with api_prefix %q", mp, c.Server.APIPrefix)
		}
		for _, reserved := range reservedPaths {
			if mp == reserved || strings.HasPrefix(mp, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", mp, reserved)
			}
		}
	}

	return nil
}

func (c *Config) validateRoutes() error {
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if !strings.HasPrefix(r.Prefix, c.Server.APIPrefix) {
			return fmt.Errorf("routes[%d].prefix %q must start with api_prefix %q", i, r.Prefix, c.Server.APIPrefix)
		}
		if seen[r.Prefix] {
			return fmt.Errorf("routes[%d].prefix %q is declared more than once", i, r.Prefix)
		}
		seen[r.Prefix] = true

		u, err := url.Parse(r.Origin)
		if err != nil {
			return fmt.Errorf("routes[%d].origin is not a valid URL: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("routes[%d].origin must use http or https; got %q", i, r.Origin)
		}
		if u.Host == "" {
			return fmt.Errorf("routes[%d].origin must include a host; got %q", i, r.Origin)
		}
		if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("routes[%d].origin must be scheme://host[:port] only; got %q", i, r.Origin)
		}
	}
	return nil
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StaticEnabled reports whether non-API paths are served from Static.Root.
func (c *Config) StaticEnabled() bool {
	return c.Static.Enabled != nil && *c.Static.Enabled
}

// FilePath returns the config file that was loaded, or "" when running on defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; the route table could be altered",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
