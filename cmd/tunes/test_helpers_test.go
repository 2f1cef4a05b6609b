package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tunes/internal/config"
	"tunes/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	musicDir   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(base, "config.toml"),
		musicDir:   filepath.Join(base, "music"),
	}
	env.rewriteConfig(t)
	return env
}

func (env *cliTestEnv) rewriteConfig(t *testing.T) {
	t.Helper()
	data, err := config.Encode(env.cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(env.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("tunes %s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func runJSON(t *testing.T, env *cliTestEnv, dst any, args ...string) {
	t.Helper()
	out := mustRunCLI(t, env, append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(out), dst); err != nil {
		t.Fatalf("decode output of %v: %v\n%s", args, err, out)
	}
}

func (env *cliTestEnv) writeTrack(t *testing.T, name string, tags testsupport.Tags) string {
	t.Helper()
	path := filepath.Join(env.musicDir, name)
	testsupport.WriteTagged(t, path, tags)
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

type listOutput struct {
	Items []recordView `json:"items"`
}

type addOutput struct {
	Items []addResult `json:"items"`
}

func attributeOf(view entityView, key string) (attributeView, bool) {
	for _, a := range view.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return attributeView{}, false
}
