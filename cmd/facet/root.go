package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"facet/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "facet",
		Short:         "3D defect reconstruction service",
		Long:          "facet orchestrates capture sessions, external SfM/MVS reconstruction, and defect-annotated model export.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")

	ctx := &commandContext{configFlag: &configFlag}
	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newSessionsCommand(ctx))
	root.AddCommand(newJobsCommand(ctx))
	root.AddCommand(newConfigCommand(ctx))
	root.AddCommand(newLogsCommand(ctx))
	root.AddCommand(newDoctorCommand(ctx))
	return root
}
