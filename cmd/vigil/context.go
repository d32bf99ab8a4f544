package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/ipc"
)

const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries global flag values and the lazily loaded config
// shared by every subcommand.
type commandContext struct {
	socket     string
	configFile string
	logLevel   string

	loaded    bool
	config    *config.Config
	configErr error
}

func (c *commandContext) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&c.socket, "socket", "", "Path to the vigil daemon socket")
	flags.StringVarP(&c.configFile, "config", "c", "", "Configuration file path")
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFile)
}

// ensureConfig loads the config once and creates its directories.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.loaded {
		return c.config, c.configErr
	}
	c.loaded = true
	cfg, _, _, err := config.Load(c.configPath())
	if err == nil {
		err = cfg.EnsureDirectories()
	}
	if err != nil {
		c.configErr = err
		return nil, err
	}
	c.config = cfg
	return cfg, nil
}

// configValue returns the loaded config, or nil when loading failed.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socket); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return fallbackSocketPath()
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return describeDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func describeDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `vigil start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

// fallbackSocketPath is used when the config cannot be loaded at all.
func fallbackSocketPath() string {
	if dir, err := config.ExpandPath("~/.local/share/vigil/logs"); err == nil {
		return filepath.Join(dir, "vigil.sock")
	}
	return filepath.Join(os.TempDir(), "vigil.sock")
}

func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
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
