package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeQueue()
	c.normalizeWorkers()
	c.normalizeBackend()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() {
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = defaultDebounceMS
	}
	extensions := make([]string, 0, len(c.Watch.Extensions))
	seen := make(map[string]struct{}, len(c.Watch.Extensions))
	for _, ext := range c.Watch.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		normalized = strings.TrimPrefix(normalized, ".")
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		extensions = append(extensions, normalized)
	}
	c.Watch.Extensions = extensions
}

func (c *Config) normalizeQueue() {
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = defaultQueueCapacity
	}
	c.Queue.FullPolicy = strings.ToLower(strings.TrimSpace(c.Queue.FullPolicy))
	if c.Queue.FullPolicy == "" {
		c.Queue.FullPolicy = defaultFullPolicy
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = defaultWorkerCount()
	}
	if c.Workers.MaxRetries <= 0 {
		c.Workers.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) normalizeBackend() {
	c.Backend.Command = strings.TrimSpace(c.Backend.Command)
	if c.Backend.Command == "" {
		c.Backend.Command = defaultBackendCommand
	}
	c.Backend.Model = strings.TrimSpace(c.Backend.Model)
	if c.Backend.Model == "" {
		c.Backend.Model = defaultBackendModel
	}
	c.Backend.Language = strings.ToLower(strings.TrimSpace(c.Backend.Language))
	if c.Backend.BeamSize <= 0 {
		c.Backend.BeamSize = defaultBeamSize
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = defaultBackendTimeout
	}
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
}
