package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WatchDir == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if len(c.Watch.Extensions) == 0 {
		return errors.New("watch.extensions must list at least one media extension")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.FullPolicy {
	case "block", "reject":
		return nil
	default:
		return fmt.Errorf("queue.full_policy must be \"block\" or \"reject\", got %q", c.Queue.FullPolicy)
	}
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count < 1 {
		return errors.New("workers.count must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
}
