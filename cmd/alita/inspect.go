package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/martinemde/alita/agentloop"
	"github.com/martinemde/alita/internal/config"
	"github.com/martinemde/alita/unifiedllm"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue shown to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			registry, closeMCP, err := newRegistry(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeMCP()
			_, err = fmt.Fprint(cmd.OutOrStdout(), agentloop.RenderToolCatalogue(registry.Specs()))
			return err
		},
	}
}

func newPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt [task...]",
		Short: "Print the initial prompt for a task without calling the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			if err := bindFlags(v, cmd.Flags(), map[string]string{"agent.work_dir": "work-dir"}); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			workDir, err := filepath.Abs(cfg.Agent.WorkDir)
			if err != nil {
				return errors.Wrap(err, "resolving work dir")
			}
			registry, closeMCP, err := newRegistry(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeMCP()
			prompt := agentloop.BuildInitialPrompt(strings.Join(args, " "), registry.Specs(), workDir)
			log.Info().Int("tokens", unifiedllm.CountTokens(prompt)).Int("chars", len(prompt)).Msg("initial prompt")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return err
		},
	}
	cmd.Flags().String("work-dir", ".", "Directory named in the prompt")
	return cmd
}
