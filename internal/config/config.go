// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Commands depend on it so tests can substitute their own values.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Analysis() AnalysisConfig
	Loader() LoaderConfig
	Output() OutputConfig

	SetAnalysisParallel(bool)
	SetAnalysisStrictJSON(bool)
	SetOutputFormat(string)
	SetOutputFindingsOnly(bool)
	SetDatabaseURL(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	AnalysisCfg AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	LoaderCfg   LoaderConfig   `mapstructure:"har" yaml:"har"`
	OutputCfg   OutputConfig   `mapstructure:"output" yaml:"output"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Analysis() AnalysisConfig { return c.AnalysisCfg }
func (c *Config) Loader() LoaderConfig     { return c.LoaderCfg }
func (c *Config) Output() OutputConfig     { return c.OutputCfg }

func (c *Config) SetAnalysisParallel(b bool)   { c.AnalysisCfg.Parallel = b }
func (c *Config) SetAnalysisStrictJSON(b bool) { c.AnalysisCfg.StrictJSON = b }
func (c *Config) SetOutputFormat(f string)     { c.OutputCfg.Format = f }
func (c *Config) SetOutputFindingsOnly(b bool) { c.OutputCfg.FindingsOnly = b }
func (c *Config) SetDatabaseURL(u string)      { c.DatabaseCfg.URL = u }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color of each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. Persistence is
// optional; an empty URL disables it.
type DatabaseConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// AnalysisConfig tunes the authentication analysis engine.
type AnalysisConfig struct {
	// Parallel runs the passive analyzers concurrently.
	Parallel bool `mapstructure:"parallel" yaml:"parallel"`
	// StrictJSON parses bodies as JSON instead of scanning for string fields.
	StrictJSON bool `mapstructure:"strict_json" yaml:"strict_json"`
	// SameSiteNotes emits the missing SameSite note for cookie sessions.
	SameSiteNotes bool `mapstructure:"samesite_notes" yaml:"samesite_notes"`
}

// LoaderConfig controls how archives are read.
type LoaderConfig struct {
	DecodeBodies bool `mapstructure:"decode_bodies" yaml:"decode_bodies"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format       string `mapstructure:"format" yaml:"format"`
	Path         string `mapstructure:"path" yaml:"path"`
	FindingsOnly bool   `mapstructure:"findings_only" yaml:"findings_only"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "harrier")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", true)

	// -- Analysis --
	v.SetDefault("analysis.parallel", true)
	v.SetDefault("analysis.strict_json", false)
	v.SetDefault("analysis.samesite_notes", true)

	// -- HAR loading --
	v.SetDefault("har.decode_bodies", true)

	// -- Output --
	v.SetDefault("output.format", "text")
	v.SetDefault("output.path", "")
	v.SetDefault("output.findings_only", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN usually carries a password, so it has a dedicated variable.
	_ = v.BindEnv("database.url", "HARRIER_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var validOutputFormats = []string{"json", "sarif", "text"}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if !contains(validOutputFormats, c.OutputCfg.Format) {
		return fmt.Errorf("output.format must be one of %s, got %q", strings.Join(validOutputFormats, ", "), c.OutputCfg.Format)
	}
	switch c.LoggerCfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.LoggerCfg.Format)
	}
	if c.LoggerCfg.LogFile != "" && c.LoggerCfg.MaxSize <= 0 {
		return fmt.Errorf("logger.max_size must be a positive integer when logger.log_file is set")
	}
	if c.DatabaseCfg.URL != "" && !strings.HasPrefix(c.DatabaseCfg.URL, "postgres://") && !strings.HasPrefix(c.DatabaseCfg.URL, "postgresql://") {
		return fmt.Errorf("database.url must be a postgres:// or postgresql:// URL")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
