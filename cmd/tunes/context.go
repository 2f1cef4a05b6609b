package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"tunes/internal/backend/localfile"
	"tunes/internal/backend/playlistfile"
	"tunes/internal/backend/smart"
	"tunes/internal/backend/streaming"
	"tunes/internal/cachedb"
	"tunes/internal/config"
	"tunes/internal/filecache"
	"tunes/internal/library"
	"tunes/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

// session is one opened library with every configured backend registered.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *cachedb.Store
	lib    *library.Library
	files  *localfile.Backend
}

// withLibrary opens the library under the writer lock, runs fn and waits for
// pending cache writes before closing.
func (c *commandContext) withLibrary(cmd *cobra.Command, mode lockMode, fn func(*session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	var locked bool
	if mode == lockExclusive {
		locked, err = lock.TryLock()
	} else {
		locked, err = lock.TryRLock()
	}
	if err != nil {
		return fmt.Errorf("acquire library lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("library is in use by another tunes process (lock %s)", cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	db, err := cachedb.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := newSession(cfg, logger, db)
	if err != nil {
		return err
	}
	defer s.lib.Close()

	return fn(s)
}

func newSession(cfg *config.Config, logger *slog.Logger, db *cachedb.Store) (*session, error) {
	registry := library.NewRegistry()

	cache := filecache.New(filepath.Join(cfg.AnalysisCacheDir(), "ffprobe.json"), logger)
	files := localfile.New(cfg, cache, logger)
	files.Register(registry)
	playlistfile.New(files, logger).Register(registry)
	smart.New(db, logger).Register(registry)

	if cfg.Streaming.Enabled {
		remote, err := streaming.New(cfg, logger)
		if err != nil {
			return nil, err
		}
		remote.Register(registry)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		db:     db,
		lib:    library.New(db, registry, logger),
		files:  files,
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
