package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/martinemde/alita/agentloop"
	"github.com/martinemde/alita/eventbus"
	"github.com/martinemde/alita/internal/config"
	"github.com/martinemde/alita/internal/logging"
	"github.com/martinemde/alita/internal/mcptools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// defaultMaxIterations caps runs started from the command line unless the
// config or --max-iterations says otherwise.
const defaultMaxIterations = 50

func newRunCmd() *cobra.Command {
	var transcriptOut string

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run the agent on a task until it calls finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			v.SetDefault("agent.max_iterations", defaultMaxIterations)
			if err := bindFlags(v, cmd.Flags(), map[string]string{
				"agent.work_dir":       "work-dir",
				"agent.max_iterations": "max-iterations",
			}); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runTask(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), transcriptOut)
		},
	}

	cmd.Flags().String("work-dir", ".", "Directory the agent reads, writes and runs commands in")
	cmd.Flags().Int("max-iterations", defaultMaxIterations, "Give up after this many model turns (0 = unlimited)")
	cmd.Flags().StringVar(&transcriptOut, "transcript-out", "", "Write the session transcript to this YAML file")
	return cmd
}

// newRegistry returns the core tools plus the tools of the MCP servers named
// in agent.mcp_config. Call the returned function to end the MCP sessions.
func newRegistry(ctx context.Context, cfg *config.Config) (*agentloop.ToolRegistry, func(), error) {
	registry := agentloop.NewToolRegistry()
	agentloop.RegisterCoreTools(registry, cfg.Agent.CommandTimeout())
	if cfg.Agent.MCPConfig == "" {
		return registry, func() {}, nil
	}

	servers, err := mcptools.LoadConfig(cfg.Agent.MCPConfig)
	if err != nil {
		return nil, nil, err
	}
	manager := mcptools.NewManager()
	closeMCP := func() {
		if err := manager.Close(); err != nil {
			log.Warn().Err(err).Msg("closing MCP sessions")
		}
	}
	if err := manager.ConnectAll(ctx, servers); err != nil {
		closeMCP()
		return nil, nil, err
	}
	n, err := manager.RegisterTools(ctx, registry)
	if err != nil {
		closeMCP()
		return nil, nil, err
	}
	log.Info().Int("tools", n).Strs("servers", manager.Servers()).Msg("registered MCP tools")
	return registry, closeMCP, nil
}

func sessionConfig(cfg *config.Config) *agentloop.SessionConfig {
	sc := agentloop.DefaultSessionConfig()
	sc.MaxIterations = cfg.Agent.MaxIterations
	sc.MaxObservationChars = cfg.Agent.MaxObservationChars
	sc.LoopDetectionWindow = cfg.Agent.LoopDetectionWindow
	sc.EnableLoopDetection = cfg.Agent.LoopDetectionWindow > 0
	return &sc
}

func runTask(ctx context.Context, out io.Writer, cfg *config.Config, task, transcriptOut string) error {
	workDir, err := filepath.Abs(cfg.Agent.WorkDir)
	if err != nil {
		return errors.Wrap(err, "resolving work dir")
	}

	client, err := newClient(cfg.LLM)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("closing LLM client")
		}
	}()

	env := agentloop.NewLocalExecutionEnvironment(workDir)
	if err := env.Initialize(); err != nil {
		return errors.Wrap(err, "initializing execution environment")
	}
	defer func() {
		_ = env.Cleanup()
	}()

	llm := agentloop.NewClientLLM(client, cfg.LLM.Provider, cfg.LLM.Model)
	temperature := cfg.LLM.Temperature
	llm.Temperature = &temperature

	registry, closeMCP, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeMCP()

	session := agentloop.NewSession(llm, agentloop.NewDispatcher(registry, env), sessionConfig(cfg))

	bus, err := eventbus.New(eventbus.WithLogger(logging.NewWatermill(log.Logger)))
	if err != nil {
		return err
	}
	defer func() {
		_ = bus.Close()
	}()
	if err := bus.Register("console", newProgressPrinter(out), sessionEventsTopic); err != nil {
		return err
	}
	// the bus outlives an interrupted session so its last events still print
	busCtx := context.WithoutCancel(ctx)
	if err := bus.Start(busCtx); err != nil {
		return err
	}
	log.Info().
		Str("session", session.ID()).
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Str("work_dir", workDir).
		Msg("starting session")

	var (
		result *agentloop.Result
		g      errgroup.Group
	)
	g.Go(func() error {
		forwardEvents(busCtx, bus, session)
		return nil
	})
	g.Go(func() error {
		var err error
		result, err = session.Run(ctx, task)
		return err
	})
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(busCtx, 10*time.Second)
	defer cancel()
	if err := bus.StopWhenIdle(stopCtx); err != nil {
		log.Warn().Err(err).Msg("event bus did not drain")
	}

	if transcriptOut != "" && session.Transcript() != nil {
		if err := writeTranscript(transcriptOut, session.Transcript()); err != nil {
			if runErr == nil {
				return err
			}
			log.Error().Err(err).Msg("could not write transcript")
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Info().
		Int("iterations", result.Iterations).
		Str("status", string(result.Status)).
		Msg("session finished")
	_, err = fmt.Fprintln(out, result.Message)
	return err
}

func writeTranscript(path string, transcript *agentloop.Transcript) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating transcript file")
	}
	if err := transcript.WriteYAML(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing transcript to %s", path)
	}
	return f.Close()
}
