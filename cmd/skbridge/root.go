package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/skbridge/internal/config"
	"github.com/dshills/skbridge/internal/sourcekitd"
)

// rootState carries the resolved configuration across subcommands.
type rootState struct {
	configPath string
	service    string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

func newRootCommand() *cobra.Command {
	state := &rootState{}

	root := &cobra.Command{
		Use:   "skbridge",
		Short: "Command-line client for sourcekitd backend services",
		Long: `skbridge opens a session against a sourcekitd backend service and
sends key/value dictionary requests to it. Useful for reproducing crashes,
inspecting responses, and exercising the UID vocabulary outside an editor.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&state.configPath, "config", "", "path to skbridge.toml")
	flags.StringVar(&state.service, "service", "", "path to the sourcekitd service binary (overrides config)")
	flags.StringVar(&state.logLevel, "log-level", "", "debug, info, warn, or error (overrides config)")

	root.AddCommand(newSendCommand(state))
	root.AddCommand(newUIDsCommand(state))
	root.AddCommand(newCrashCommand(state))
	root.AddCommand(newVersionCommand())

	return root
}

// setup loads configuration and installs the logger.
func (s *rootState) setup() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.service != "" {
		cfg.SourceKit.ServicePath = s.service
	}
	if s.logLevel != "" {
		cfg.Logging.Level = s.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	s.cfg = cfg

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	s.log = slog.New(handler)
	return nil
}

// openSession connects to the configured backend service.
func (s *rootState) openSession() (*sourcekitd.SourceKitD, error) {
	if s.cfg.SourceKit.ServicePath == "" {
		return nil, fmt.Errorf("no service path configured; use --service or set sourcekit.service_path")
	}
	plugins := sourcekitd.PluginPaths{
		ClientPlugin:  s.cfg.SourceKit.ClientPlugin,
		ServicePlugin: s.cfg.SourceKit.ServicePlugin,
	}
	respawn := s.respawnConfig()
	registry := sourcekitd.NewRegistry(sourcekitd.WithRegistryLogger(s.log))
	return registry.GetOrCreate(s.cfg.SourceKit.ServicePath, plugins,
		func(path string, plugins sourcekitd.PluginPaths) (*sourcekitd.SourceKitD, error) {
			return sourcekitd.New(path, plugins,
				sourcekitd.WithLogger(s.log),
				sourcekitd.WithLibraryOpener(func(path string, plugins sourcekitd.PluginPaths) (sourcekitd.Library, error) {
					return sourcekitd.NewDaemonLibrary(path, plugins,
						sourcekitd.WithRespawnConfig(respawn),
						sourcekitd.WithDaemonLogger(s.log))
				}))
		})
}

// respawnConfig builds the daemon respawn policy from the configuration.
func (s *rootState) respawnConfig() sourcekitd.RespawnConfig {
	cfg := sourcekitd.DefaultRespawnConfig()
	cfg.MaxRestarts = s.cfg.SourceKit.MaxRestarts
	return cfg
}

// requestTimeout resolves the effective per-request timeout: an explicit
// flag wins, otherwise the configured default applies.
func (s *rootState) requestTimeout(flag time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return s.cfg.SourceKit.RequestTimeout.Std()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("skbridge %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
