package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStreaming(); err != nil {
		return err
	}
	if err := c.validateLocalFiles(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	return nil
}

func (c *Config) validateStreaming() error {
	if !c.Streaming.Enabled {
		return nil
	}
	if c.Streaming.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("streaming.token is required when streaming is enabled. Set TUNES_STREAMING_TOKEN env var or edit %s (create with 'tunes config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Streaming.BaseURL, "http://") && !strings.HasPrefix(c.Streaming.BaseURL, "https://") {
		return fmt.Errorf("streaming.base_url must be an http(s) URL, got %q", c.Streaming.BaseURL)
	}
	return nil
}

func (c *Config) validateLocalFiles() error {
	if c.LocalFiles.Workers > 64 {
		return fmt.Errorf("local_files.workers must be at most 64, got %d", c.LocalFiles.Workers)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	for component, level := range c.Logging.ComponentLevels {
		if !validLevel(level) {
			return fmt.Errorf("logging.component_levels.%s must be debug, info, warn or error, got %q", component, level)
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
