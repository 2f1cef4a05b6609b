package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tunes/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Streaming is disabled and tag analysis stays off unless an option enables it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Streaming.Enabled = false
	cfgVal.LocalFiles.Analyze = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStreaming enables the streaming backend against baseURL.
func WithStreaming(baseURL, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Streaming.Enabled = true
		b.cfg.Streaming.BaseURL = baseURL
		b.cfg.Streaming.Token = token
	}
}

// WithFFprobeOutput installs a stub ffprobe that prints payload and records
// each invocation in a calls file next to it. Analysis is enabled.
func WithFFprobeOutput(payload string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "ffprobe")
		calls := filepath.Join(binDir, "ffprobe.calls")
		script := "#!/bin/sh\necho \"$@\" >> '" + calls + "'\ncat <<'JSON'\n" + payload + "\nJSON\n"
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write stub ffprobe: %v", err)
		}
		b.cfg.LocalFiles.FFprobeBinary = target
		b.cfg.LocalFiles.Analyze = true
	}
}

// WithStubbedBinaries writes stub executables that exit successfully and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// FFprobeCalls returns how many times the stub installed by
// WithFFprobeOutput ran.
func FFprobeCalls(t testing.TB, cfg *config.Config) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(BaseDir(cfg), "bin", "ffprobe.calls"))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read ffprobe calls: %v", err)
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count
}
