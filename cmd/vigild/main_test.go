package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDaemonFlagsOptions(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.ParseFlags([]string{"--log-level", " debug ", "--dev"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	level, _ := cmd.Flags().GetString("log-level")
	dev, _ := cmd.Flags().GetBool("dev")
	flags := &daemonFlags{logLevel: level, development: dev}
	opts := flags.options()
	if opts.LogLevel != "debug" || !opts.Development {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[store]\nbackend = \"mongo\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected unknown store backend to fail validation")
	}
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}
