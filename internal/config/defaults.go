package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigPath       = "~/.config/tunes/config.toml"
	defaultDataDir          = "~/.local/share/tunes"
	defaultLogDir           = "~/.local/share/tunes/logs"
	defaultDatabase         = "library.db"
	defaultLockFile         = "library.lock"
	defaultStreamingBaseURL = "https://api.spotify.com/v1"
	defaultStreamingMarket  = "from_token"
	defaultStreamingTimeout = 15
	defaultFFprobeBinary    = "ffprobe"
	defaultLocalWorkers     = 2
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

var defaultExtensions = []string{".mp3", ".flac", ".m4a", ".ogg", ".wav", ".aiff"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			CacheDir: defaultCacheDir(),
			LogDir:   defaultLogDir,
		},
		Library: Library{
			Database: defaultDatabase,
			LockFile: defaultLockFile,
		},
		Streaming: Streaming{
			BaseURL:        defaultStreamingBaseURL,
			Market:         defaultStreamingMarket,
			TimeoutSeconds: defaultStreamingTimeout,
		},
		LocalFiles: LocalFiles{
			FFprobeBinary: defaultFFprobeBinary,
			Workers:       defaultLocalWorkers,
			Analyze:       true,
			Extensions:    append([]string(nil), defaultExtensions...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "tunes")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/tunes"
	}
	return filepath.Join(home, ".cache", "tunes")
}
