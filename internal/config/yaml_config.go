package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"catchphish/internal/risk"
)

// YAMLConfig represents the structure of the config.yaml file.
// Structured settings that are awkward to express as env vars.
type YAMLConfig struct {
	Policy         risk.Policy       `yaml:"policy"`
	Brands         map[string]string `yaml:"brands"`          // keyword -> official domain
	SuspiciousTLDs []string          `yaml:"suspicious_tlds"` // nil keeps the built-in list
	Feeds          []FeedConfig      `yaml:"feeds"`
	Monitors       []MonitorConfig   `yaml:"monitors"`
}

// FeedConfig defines an additional threat feed.
type FeedConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Format string `yaml:"format,omitempty"` // url-list, domain-list or hostfile
}

// MonitorConfig defines a protected domain monitored from startup.
type MonitorConfig struct {
	Domain   string `yaml:"domain"`
	Interval string `yaml:"interval,omitempty"` // Go duration; empty uses the default
}

// IntervalOr parses the monitor interval, returning fallback when unset.
func (m MonitorConfig) IntervalOr(fallback time.Duration) (time.Duration, error) {
	if m.Interval == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(m.Interval)
	if err != nil {
		return 0, fmt.Errorf("monitor %s: invalid interval %q: %w", m.Domain, m.Interval, err)
	}
	return d, nil
}

// LoadYAMLConfig loads the YAML configuration file.
// Path is determined by CONFIG_FILE env var, defaulting to "config.yaml".
// A missing file yields the defaults.
func LoadYAMLConfig() (*YAMLConfig, error) {
	return LoadYAMLConfigFile(getEnv("CONFIG_FILE", "config.yaml"))
}

// LoadYAMLConfigFile loads path. Policy fields absent from the file keep
// their default values.
func LoadYAMLConfigFile(path string) (*YAMLConfig, error) {
	cfg := &YAMLConfig{Policy: risk.DefaultPolicy()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file is optional
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return nil, fmt.Errorf("%s: feeds[%d] needs name and url", path, i)
		}
	}
	return cfg, nil
}
