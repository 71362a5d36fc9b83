package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zk/xray-reporter/internal/report"
)

// EnvPrefix prefixes every environment variable read as configuration,
// e.g. XRAY_REPORTER_XRAYHOST
const EnvPrefix = "XRAY_REPORTER"

// ConfigName is the base name of the config file looked up in the working directory
const ConfigName = "xray-reporter"

// ErrInvalidOutputDir means no usable output directory is configured
var ErrInvalidOutputDir = errors.New("invalid output directory")

// Config holds the reporter options
type Config struct {
	ProjectID        string `mapstructure:"projectId"`
	OutputDir        string `mapstructure:"outputDir"`
	Upload           bool   `mapstructure:"upload"`
	XrayHost         string `mapstructure:"xrayHost"`
	XrayUser         string `mapstructure:"xrayUser"`
	XrayPass         string `mapstructure:"xrayPass"`
	SlackWebhookURL  string `mapstructure:"slackWebhookUrl"`
	TestKey          string `mapstructure:"testKey"`
	TestSetKey       string `mapstructure:"testSetKey"`
	TestPlanKey      string `mapstructure:"testPlanKey"`
	TestExecutionKey string `mapstructure:"testExecutionKey"`
	Revision         string `mapstructure:"revision"`
	Version          string `mapstructure:"version"`
	User             string `mapstructure:"user"`
	Project          string `mapstructure:"project"`
	MetricsFile      string `mapstructure:"metricsFile"`

	// AdditionalEnvironmentData may be configured as a single value or a list
	AdditionalEnvironmentData []string `mapstructure:"-"`
}

var keys = []string{
	"projectId", "outputDir", "upload", "xrayHost", "xrayUser", "xrayPass",
	"slackWebhookUrl", "testKey", "testSetKey", "testPlanKey", "testExecutionKey",
	"revision", "version", "user", "project", "metricsFile", "additionalEnvironmentData",
}

// Load reads the configuration for the current working directory.
// configFile may be empty, in which case xray-reporter.{yaml,json,toml} is
// used when present.
func Load(configFile string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadDir(cwd, configFile)
}

// LoadDir reads the configuration as if dir were the working directory.
// Precedence, highest first: environment, config file, defaults. A .env file
// in dir is loaded into the environment first without overriding variables
// that are already set.
func LoadDir(dir, configFile string) (*Config, error) {
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, key := range keys {
		// registers the key so environment-only values reach Unmarshal
		v.SetDefault(key, "")
	}
	v.SetDefault("upload", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(ConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AdditionalEnvironmentData = stringList(v.Get("additionalEnvironmentData"))
	return &cfg, nil
}

func loadDotEnv(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// stringList flattens a scalar or list value into a list of strings
func stringList(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// UploadEnabled reports whether reports should be posted to Xray
func (c *Config) UploadEnabled() bool {
	return c.Upload && c.XrayHost != ""
}

// NotifyEnabled reports whether a summary should be posted to Slack
func (c *Config) NotifyEnabled() bool {
	return c.Upload && c.SlackWebhookURL != ""
}

// ResolveOutputDir returns the directory reports are written to. It is
// created on write, so only an unset value or an existing non-directory is
// rejected.
func (c *Config) ResolveOutputDir() (string, error) {
	dir := strings.TrimSpace(c.OutputDir)
	if dir == "" {
		return "", fmt.Errorf("%w: outputDir is not set", ErrInvalidOutputDir)
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidOutputDir, dir)
	}
	return dir, nil
}

// ReportOptions returns the execution metadata stamped on every report
func (c *Config) ReportOptions() report.Options {
	return report.Options{
		AdditionalEnvironments: c.AdditionalEnvironmentData,
		TestKey:                c.TestKey,
		TestSetKey:             c.TestSetKey,
		TestPlanKey:            c.TestPlanKey,
		TestExecutionKey:       c.TestExecutionKey,
		Revision:               c.Revision,
		Version:                c.Version,
		User:                   c.User,
		Project:                c.Project,
	}
}
