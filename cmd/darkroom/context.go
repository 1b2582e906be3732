package main

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/pipeline"
)

type commandContext struct {
	configFlag  *string
	jsonFlag    *bool
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		jsonFlag:    jsonFlag,
		verboseFlag: verboseFlag,
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

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger writes to stderr so stdout stays parseable, and to the shared log
// file. Without --verbose only warnings reach the terminal.
func (c *commandContext) logger(cfg *config.Config) (*slog.Logger, error) {
	level := "warn"
	if c.verboseFlag != nil && *c.verboseFlag {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		Color:       cfg.Logging.Color,
		OutputPaths: []string{"stderr", cfg.LogPath()},
	})
}

// withService opens the pipeline for the duration of fn.
func (c *commandContext) withService(cmd *cobra.Command, fn func(*pipeline.Service) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.logger(cfg)
	if err != nil {
		return err
	}
	svc, err := pipeline.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, svc.Close())
	}()
	return fn(svc)
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
