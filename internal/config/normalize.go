package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLibrary()
	c.normalizeStreaming()
	c.normalizeLocalFiles()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibrary() {
	c.Library.Database = strings.TrimSpace(c.Library.Database)
	if c.Library.Database == "" {
		c.Library.Database = defaultDatabase
	}
	c.Library.LockFile = strings.TrimSpace(c.Library.LockFile)
	if c.Library.LockFile == "" {
		c.Library.LockFile = defaultLockFile
	}
}

func (c *Config) normalizeStreaming() {
	if c.Streaming.Token == "" {
		if value, ok := os.LookupEnv("TUNES_STREAMING_TOKEN"); ok {
			c.Streaming.Token = strings.TrimSpace(value)
		}
	}
	c.Streaming.BaseURL = strings.TrimRight(strings.TrimSpace(c.Streaming.BaseURL), "/")
	if c.Streaming.BaseURL == "" {
		c.Streaming.BaseURL = defaultStreamingBaseURL
	}
	c.Streaming.Market = strings.TrimSpace(c.Streaming.Market)
	if c.Streaming.Market == "" {
		c.Streaming.Market = defaultStreamingMarket
	}
	if c.Streaming.TimeoutSeconds <= 0 {
		c.Streaming.TimeoutSeconds = defaultStreamingTimeout
	}
}

func (c *Config) normalizeLocalFiles() {
	c.LocalFiles.FFprobeBinary = strings.TrimSpace(c.LocalFiles.FFprobeBinary)
	if c.LocalFiles.FFprobeBinary == "" {
		c.LocalFiles.FFprobeBinary = defaultFFprobeBinary
	}
	if c.LocalFiles.Workers <= 0 {
		c.LocalFiles.Workers = defaultLocalWorkers
	}
	if len(c.LocalFiles.Extensions) == 0 {
		c.LocalFiles.Extensions = append([]string(nil), defaultExtensions...)
	}
	seen := make(map[string]struct{}, len(c.LocalFiles.Extensions))
	exts := c.LocalFiles.Extensions[:0]
	for _, ext := range c.LocalFiles.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.LocalFiles.Extensions = exts
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	for component, level := range c.Logging.ComponentLevels {
		c.Logging.ComponentLevels[component] = strings.ToLower(strings.TrimSpace(level))
	}
}
