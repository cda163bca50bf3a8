// Package config provides configuration management for the placement service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config struct to hold all configuration data
type Config struct {
	// Accepted API keys, a YAML list. The API_KEY env var takes a comma separated
	// list instead. A matching key grants the admin role.
	APIKeys             []string `yaml:"api_keys"`
	AllowAnonymousAdmin bool     `yaml:"allow_anonymous_admin"`
	Port                int      `yaml:"port"`
	LogLevel            string   `yaml:"log_level"`
	MaxConnections      int      `yaml:"max_connections"`
	AnonymousRPS        float64  `yaml:"anonymous_rps"`
	MaxAnonymousDim     int      `yaml:"max_anonymous_dimension"`

	Assets AssetsConfig `yaml:"assets"`
	Render RenderConfig `yaml:"render"`
	Poster PosterConfig `yaml:"poster"`
}

// AssetsConfig locates scene images, guide layers and metadata.
type AssetsConfig struct {
	Dir       string        `yaml:"dir"`
	BaseURL   string        `yaml:"base_url"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	RemoteRPS float64       `yaml:"remote_rps"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RenderConfig tunes the compositing pipeline and the variant cache.
type RenderConfig struct {
	VariantWidths []int         `yaml:"variant_widths"`
	Timeout       time.Duration `yaml:"timeout"`
}

// PosterConfig configures where poster rasters come from.
type PosterConfig struct {
	RenderAPIBaseURL string        `yaml:"render_api_base_url"`
	RenderAPIKey     string        `yaml:"render_api_key"`
	DefaultPath      string        `yaml:"default_path"`
	PDFDPI           int           `yaml:"pdf_dpi"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Load builds the configuration from defaults, the optional YAML file at path and
// the environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	c := &Config{}
	c.setDefaultValues()

	if path != "" {
		if err := c.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFromFile loads configuration from the specified file
func (c *Config) loadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// setDefaultValues sets default values for the configuration
func (c *Config) setDefaultValues() {
	c.Port = DefaultPort
	c.LogLevel = "info"
	c.MaxConnections = DefaultMaxConnections
	c.AnonymousRPS = DefaultAnonymousRPS
	c.MaxAnonymousDim = DefaultMaxAnonymousDim
	c.Assets = AssetsConfig{
		Dir:       DefaultAssetsDir,
		Region:    DefaultAWSRegion,
		RemoteRPS: DefaultRemoteRPS,
		Timeout:   DefaultFetchTimeout,
	}
	c.Render = RenderConfig{
		VariantWidths: append([]int(nil), DefaultVariantWidths...),
		Timeout:       DefaultRenderTimeout,
	}
	c.Poster = PosterConfig{
		DefaultPath: DefaultPosterPath,
		PDFDPI:      DefaultPDFDPI,
		Timeout:     DefaultFetchTimeout,
	}
}

// applyEnv overrides values with the environment variables of the service.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	fnum := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	if v, ok := lookup("API_KEY"); ok && v != "" {
		c.APIKeys = splitList(v)
	}
	flag("ALLOW_ANONYMOUS_ADMIN", &c.AllowAnonymousAdmin)
	num("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	num("MAX_CONNECTIONS", &c.MaxConnections)
	fnum("ANONYMOUS_RPS", &c.AnonymousRPS)
	num("MAX_ANONYMOUS_DIMENSION", &c.MaxAnonymousDim)
	str("ASSETS_DIR", &c.Assets.Dir)
	str("ASSETS_BASE_URL", &c.Assets.BaseURL)
	str("AWS_S3_BUCKET_NAME", &c.Assets.Bucket)
	str("AWS_REGION", &c.Assets.Region)
	fnum("REMOTE_RPS", &c.Assets.RemoteRPS)
	str("RENDER_API_BASE_URL", &c.Poster.RenderAPIBaseURL)
	str("RENDER_API_KEY", &c.Poster.RenderAPIKey)
	str("DEFAULT_POSTER_PATH", &c.Poster.DefaultPath)
	dur("RENDER_TIMEOUT", &c.Render.Timeout)

	if v, ok := lookup("VARIANT_WIDTHS"); ok && v != "" {
		var widths []int
		for _, part := range splitList(v) {
			w, err := strconv.Atoi(part)
			if err != nil {
				errs = append(errs, fmt.Errorf("VARIANT_WIDTHS: %w", err))
				continue
			}
			widths = append(widths, w)
		}
		c.Render.VariantWidths = widths
	}

	return errors.Join(errs...)
}

// Validate reports configuration that would leave the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.Assets.Dir == "" && c.Assets.BaseURL == "" {
		errs = append(errs, errors.New("either assets dir or assets base url is required"))
	}
	for _, w := range c.Render.VariantWidths {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("invalid variant width %d", w))
		}
	}
	if c.Render.Timeout < 0 {
		errs = append(errs, errors.New("render timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// DebugEnabled reports whether debug logging was requested.
func (c *Config) DebugEnabled() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
