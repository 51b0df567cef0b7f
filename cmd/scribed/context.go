package main

import (
	"log/slog"
	"strings"
	"sync"

	"scribed/internal/config"
	"scribed/internal/logging"
	"scribed/internal/tracking"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return strings.TrimSpace(*c.logLevelFlag)
	}
	if c.config != nil {
		return c.config.Logging.Level
	}
	return "info"
}

func (c *commandContext) buildLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := c.logLevel()
	if level != cfg.Logging.Level {
		adjusted := *cfg
		adjusted.Logging.Level = level
		return logging.NewFromConfig(&adjusted)
	}
	return logging.NewFromConfig(cfg)
}

// withStore opens the tracking store directly for offline inspection and
// maintenance commands.
func (c *commandContext) withStore(fn func(*tracking.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := tracking.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
