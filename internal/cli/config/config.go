package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "aerosense.yaml"

// Server is an AeroSense backend the CLI can talk to
type Server struct {
	Alias string `yaml:"alias"`
	URL   string `yaml:"url"`
}

// Config represents the CLI project configuration file
type Config struct {
	Servers []Server `yaml:"servers"`

	// ValidationTimeout bounds the startup token check, e.g. "10s"
	ValidationTimeout string `yaml:"validationTimeout,omitempty"`
	// AutoLoginDelay is the pause before signing in after sign-up, e.g. "500ms"
	AutoLoginDelay string `yaml:"autoLoginDelay,omitempty"`
}

// DefaultConfig returns a default configuration pointing at a local server
func DefaultConfig() *Config {
	return &Config{
		Servers: []Server{
			{
				Alias: "local",
				URL:   "http://localhost:8080",
			},
		},
		ValidationTimeout: "10s",
		AutoLoginDelay:    "500ms",
	}
}

// FindConfigFile searches for aerosense.yaml in dir and its parents
func FindConfigFile(dir string) (string, error) {
	start := dir
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found in %s or any parent directory", ConfigFileName, start)
}

// Load reads the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for i, s := range cfg.Servers {
		cfg.Servers[i].URL = strings.TrimRight(strings.TrimSpace(s.URL), "/")
	}

	if _, err := cfg.Timeouts(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromCurrentDir loads config from the working directory or its parents
func LoadFromCurrentDir() (*Config, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	configPath, err := FindConfigFile(currentDir)
	if err != nil {
		return nil, err
	}

	return Load(configPath)
}

// Save writes the configuration to a file
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Timings holds the parsed duration settings. Zero means default.
type Timings struct {
	ValidationTimeout time.Duration
	AutoLoginDelay    time.Duration
}

// Timeouts parses the duration settings
func (c *Config) Timeouts() (Timings, error) {
	var t Timings
	var err error

	if c.ValidationTimeout != "" {
		if t.ValidationTimeout, err = time.ParseDuration(c.ValidationTimeout); err != nil {
			return t, fmt.Errorf("invalid validationTimeout %q: %w", c.ValidationTimeout, err)
		}
	}
	if c.AutoLoginDelay != "" {
		if t.AutoLoginDelay, err = time.ParseDuration(c.AutoLoginDelay); err != nil {
			return t, fmt.Errorf("invalid autoLoginDelay %q: %w", c.AutoLoginDelay, err)
		}
	}

	return t, nil
}

// GetServerByAlias returns a server by its alias
func (c *Config) GetServerByAlias(alias string) (*Server, error) {
	for i := range c.Servers {
		if c.Servers[i].Alias == alias {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server with alias '%s' not found", alias)
}

// GetServerByURLOrAlias finds a server by URL first, then by alias
func (c *Config) GetServerByURLOrAlias(urlOrAlias string) (*Server, error) {
	normalized := strings.TrimRight(urlOrAlias, "/")
	for i := range c.Servers {
		if c.Servers[i].URL == normalized {
			return &c.Servers[i], nil
		}
	}
	for i := range c.Servers {
		if c.Servers[i].Alias == urlOrAlias {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server with URL or alias '%s' not found", urlOrAlias)
}

// GetDefaultServer returns the first server in the list
func (c *Config) GetDefaultServer() (*Server, error) {
	if len(c.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured in %s", ConfigFileName)
	}
	return &c.Servers[0], nil
}
