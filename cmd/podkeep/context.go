package main

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"podkeep/internal/app"
	"podkeep/internal/config"
	"podkeep/internal/logging"
	"podkeep/internal/storage"
)

type commandContext struct {
	configFlag *string
	dbFlag     *string
	verbose    *bool

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, dbFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dbFlag:     dbFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	return config.DefaultPath()
}

// ensureConfig loads the config file once, creating it on first use, and
// applies command-line overrides.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (config.Config, error) {
	c.configOnce.Do(func() {
		prompt := isatty.IsTerminal(os.Stdin.Fd())
		cfg, err := config.Ensure(cmd.Context(), c.configPath(), prompt)
		if err != nil {
			c.configErr = err
			return
		}
		if c.dbFlag != nil && strings.TrimSpace(*c.dbFlag) != "" {
			cfg.DatabasePath = strings.TrimSpace(*c.dbFlag)
		}
		if c.verbose != nil && *c.verbose {
			cfg.LogLevel = "debug"
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withApp builds the logger and application for one command invocation.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.Configure(cmd.ErrOrStderr(), cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		return err
	}
	defer application.Close()

	return fn(application)
}

// withRunLock is withApp for commands that write to the database. The lock is
// taken before the database is opened, so a refused run never migrates it.
func (c *commandContext) withRunLock(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig(cmd)
	if err != nil {
		return err
	}
	lock, err := storage.Lock(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return c.withApp(cmd, fn)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
