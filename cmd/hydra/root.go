package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-hydra/internal/application"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hydra",
		Short:         "Contest scoring and interview verdict engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to the YAML config (default $HYDRA_CONFIG or "+application.DefaultConfigPath+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newScoreCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*application.Config, error) {
	return application.LoadConfig(o.configPath)
}
