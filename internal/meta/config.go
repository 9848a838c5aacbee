package meta

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ApplicationConfig is a top-level block for application-level meta configuration.
type ApplicationConfig struct {
	SentryDSN string `yaml:"sentry_dsn"`
}

// ForwarderConfig is a top-level block describing the FFWD daemon destination
// and the identity under which records are emitted.
type ForwarderConfig struct {
	Host              string            `yaml:"host"`
	Port              int               `yaml:"port"`
	Key               string            `yaml:"key"`
	DefaultAttributes map[string]string `yaml:"default_attributes"`
}

// StatsdConfig is a top-level block enabling the statsd bridge output.
type StatsdConfig struct {
	Address string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// ReporterConfig is a top-level block enabling the periodic runtime stats reporter.
type ReporterConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DebugConfig is a top-level block for debug record listener configuration.
type DebugConfig struct {
	UDP *struct {
		Address            string        `yaml:"addr"`
		MaxConcurrentReads int           `yaml:"max_concurrent_reads"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
	} `yaml:"udp"`
	TCP *struct {
		Address     string        `yaml:"addr"`
		ReadTimeout time.Duration `yaml:"read_timeout"`
	} `yaml:"tcp"`
}

// Config describes all application configuration options.
type Config struct {
	Application *ApplicationConfig `yaml:"application"`
	Forwarder   *ForwarderConfig   `yaml:"forwarder"`
	Statsd      *StatsdConfig      `yaml:"statsd"`
	Reporter    *ReporterConfig    `yaml:"reporter"`
	Debug       *DebugConfig       `yaml:"debug"`
}

// ParseConfig parses a Config struct instance from a file specified as a path on disk.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: error reading config: err=%v", err)
	}

	var cfg *Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: error parsing config: err=%v", err)
	}

	if cfg == nil {
		return nil, fmt.Errorf("config: empty config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate the contents of the configuration. Returns an error if validation failed; nil otherwise.
func (c *Config) validate() error {
	/* Forwarder */

	// Users can omit the forwarder block entirely; host and port carry
	// library-level defaults when present but unset.
	if c.Forwarder != nil {
		if c.Forwarder.Key == "" {
			return fmt.Errorf("config: missing forwarder emission key")
		}

		if c.Forwarder.Port < 0 || c.Forwarder.Port > 65535 {
			return fmt.Errorf("config: forwarder port out of range: port=%d", c.Forwarder.Port)
		}
	}

	/* Statsd */

	if c.Statsd != nil && c.Statsd.Address == "" {
		return fmt.Errorf("config: missing statsd bridge address")
	}

	/* Reporter */

	if c.Reporter != nil && c.Reporter.Interval < 0 {
		return fmt.Errorf("config: reporter interval must not be negative")
	}

	/* Debug */

	if c.Debug != nil {
		if c.Debug.UDP == nil && c.Debug.TCP == nil {
			return fmt.Errorf("config: at least one TCP or UDP debug listener must be specified")
		}

		if c.Debug.UDP != nil && c.Debug.UDP.Address == "" {
			return fmt.Errorf("config: missing UDP debug listening address")
		}

		if c.Debug.TCP != nil && c.Debug.TCP.Address == "" {
			return fmt.Errorf("config: missing TCP debug listening address")
		}
	}

	if c.Reporter == nil && c.Debug == nil {
		return fmt.Errorf("config: at least one of reporter or debug must be specified")
	}

	return nil
}
