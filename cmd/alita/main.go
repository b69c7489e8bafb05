package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/martinemde/alita/internal/config"
	"github.com/martinemde/alita/internal/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "alita",
		Short:        "alita runs an autonomous coding agent in a working directory",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			if err := config.Init(v, configFile); err != nil {
				return err
			}
			if err := bindFlags(v, cmd.Root().PersistentFlags(), map[string]string{
				"log.level":        "log-level",
				"log.format":       "log-format",
				"log.file":         "log-file",
				"log.with_caller":  "with-caller",
				"agent.mcp_config": "mcp-config",
			}); err != nil {
				return err
			}

			// reinitialize the logger because we can now parse --log-level and co
			// from the command line flags and the config file
			return logging.InitLogger(logging.LogConfig{
				Level:      v.GetString("log.level"),
				Format:     v.GetString("log.format"),
				File:       v.GetString("log.file"),
				WithCaller: v.GetBool("log.with_caller"),
			})
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to config file (default: config.yaml in ., $HOME/.alita or the user config dir)")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("log-file", "", "Also write logs to this file")
	flags.Bool("with-caller", false, "Log caller information")
	flags.String("mcp-config", "", "mcp.json file listing MCP servers whose tools are offered to the model")

	rootCmd.AddCommand(newRunCmd(), newToolsCmd(), newPromptCmd(), newKeyCmd())
	return rootCmd
}

// bindFlags makes flags override the config keys they are mapped to.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.Wrapf(err, "binding --%s", name)
		}
	}
	return nil
}

func main() {
	_ = logging.InitLogger(logging.LogConfig{Level: "info", Format: "text"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
