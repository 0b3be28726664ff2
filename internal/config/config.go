// Package config provides configuration management for previewd using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration is loaded once at startup and handed to the server as an
// immutable snapshot. Changing any value (proxy rules, the refresh secret, the
// GraphQL IDE mode) requires building a new pipeline from a new snapshot.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/validation"
)

// GraphQL explorer modes.
const (
	IDEGraphiQL   = "graphiql"
	IDEPlayground = "playground"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Project     ProjectConfig     `mapstructure:"project" yaml:"project"`
	Proxy       []ProxyRule       `mapstructure:"proxy" yaml:"proxy"`
	Refresh     RefreshConfig     `mapstructure:"refresh" yaml:"refresh"`
	GraphQL     GraphQLConfig     `mapstructure:"graphql" yaml:"graphql"`
	Render      RenderConfig      `mapstructure:"render" yaml:"render"`
	Editor      EditorConfig      `mapstructure:"editor" yaml:"editor"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	Open        bool   `mapstructure:"open" yaml:"open"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// ProjectConfig locates the site being previewed.
type ProjectConfig struct {
	Root           string `mapstructure:"root" yaml:"root"`
	PublicDir      string `mapstructure:"public_dir" yaml:"public_dir"`
	PageManifest   string `mapstructure:"page_manifest" yaml:"page_manifest"`
	BuildOutputDir string `mapstructure:"build_output_dir" yaml:"build_output_dir"`
	// StripSegments is the number of leading path segments removed from
	// file names found in render stack traces before they are resolved
	// against Root.
	StripSegments int `mapstructure:"strip_segments" yaml:"strip_segments"`
}

// ProxyRule forwards every request whose path starts with Prefix to Target.
type ProxyRule struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Target string `mapstructure:"target" yaml:"target"`
}

type RefreshConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Secret  string `mapstructure:"secret" yaml:"secret"`
}

type GraphQLConfig struct {
	IDE      string `mapstructure:"ide" yaml:"ide"`
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
}

type RenderConfig struct {
	Entry   string   `mapstructure:"entry" yaml:"entry"`
	Command []string `mapstructure:"command" yaml:"command"`
	Workers int      `mapstructure:"workers" yaml:"workers"`

	// Env entries are KEY=value pairs passed to the renderer in order.
	Env []string `mapstructure:"env" yaml:"env"`
}

type EditorConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
}

type DevelopmentConfig struct {
	HotReload bool `mapstructure:"hot_reload" yaml:"hot_reload"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.open", false)
	v.SetDefault("server.environment", "development")

	v.SetDefault("project.root", ".")
	v.SetDefault("project.public_dir", "public")
	v.SetDefault("project.page_manifest", ".cache/pages.yml")
	v.SetDefault("project.build_output_dir", ".cache/develop")
	v.SetDefault("project.strip_segments", 2)

	v.SetDefault("refresh.enabled", false)
	v.SetDefault("graphql.ide", IDEGraphiQL)

	v.SetDefault("render.entry", ".cache/develop/render-page.js")
	v.SetDefault("render.command", []string{"node"})
	v.SetDefault("render.workers", 2)

	v.SetDefault("development.hot_reload", true)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	cfg.GraphQL.IDE = strings.ToLower(strings.TrimSpace(cfg.GraphQL.IDE))
	if cfg.GraphQL.IDE == "" {
		cfg.GraphQL.IDE = IDEGraphiQL
	}
	for i := range cfg.Proxy {
		cfg.Proxy[i].Target = strings.TrimRight(cfg.Proxy[i].Target, "/")
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ProjectPath resolves p against the project root.
func (c *Config) ProjectPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}

// RenderEnv returns the configured render environment as ordered pairs.
func (c *Config) RenderEnv() [][2]string {
	env := make([][2]string, 0, len(c.Render.Env))
	for _, entry := range c.Render.Env {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env = append(env, [2]string{key, value})
	}
	return env
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("port %d is not in valid range 0-65535", cfg.Server.Port))
	}

	if strings.ContainsAny(cfg.Server.Host, ";&|$`()<>\"'\\") {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "host contains dangerous characters")
	}

	for i, rule := range cfg.Proxy {
		if err := validation.ValidateProxyPrefix(rule.Prefix); err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidProxyRule,
				fmt.Sprintf("proxy[%d]: %v", i, err))
		}
		if err := validation.ValidateProxyTarget(rule.Target); err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidProxyRule,
				fmt.Sprintf("proxy[%d]: %v", i, err))
		}
	}

	switch cfg.GraphQL.IDE {
	case IDEGraphiQL, IDEPlayground:
	default:
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("graphql.ide must be %q or %q, got %q", IDEGraphiQL, IDEPlayground, cfg.GraphQL.IDE))
	}

	if cfg.GraphQL.Upstream != "" {
		if err := validation.ValidateProxyTarget(cfg.GraphQL.Upstream); err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("graphql.upstream: %v", err))
		}
	}

	if err := validation.ValidateCommand(cfg.Render.Command, false); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, fmt.Sprintf("render.command: %v", err))
	}
	if err := validation.ValidateCommand(strings.Fields(cfg.Editor.Command), true); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, fmt.Sprintf("editor.command: %v", err))
	}

	if cfg.Render.Workers < 1 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "render.workers must be at least 1")
	}

	for _, entry := range cfg.Render.Env {
		if key, _, ok := strings.Cut(entry, "="); !ok || key == "" {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("render.env entry %q must be KEY=value", entry))
		}
	}

	if cfg.Project.StripSegments < 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "project.strip_segments must not be negative")
	}

	return nil
}
