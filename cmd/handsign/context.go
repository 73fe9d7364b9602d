package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/config"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     zerolog.Logger

	metricsOnce sync.Once
	metrics     *metrics.Metrics

	storeMu sync.Mutex
	store   *store.Store
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
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// log returns the command logger. Before the configuration loads it falls
// back to info-level auto-format output.
func (c *commandContext) log() zerolog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger, _ = logging.New(logging.Options{})
			logger.Warn().Err(err).Msg("invalid logging configuration, using defaults")
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) componentLog(name string) zerolog.Logger {
	return logging.Component(c.log(), name)
}

func (c *commandContext) metricsValue() *metrics.Metrics {
	c.metricsOnce.Do(func() {
		c.metrics = metrics.New()
	})
	return c.metrics
}

// openStore opens the audit database once per command.
func (c *commandContext) openStore() (*store.Store, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if c.store != nil {
		return c.store, nil
	}
	if c.config == nil {
		return nil, errors.New("configuration not loaded")
	}
	st, err := store.New(c.config.Paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	c.store = st
	return st, nil
}

func (c *commandContext) close() error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
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
