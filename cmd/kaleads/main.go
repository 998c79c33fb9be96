// kaleads: outreach field resolution with fallback cascades.
//
// Every personalization slot of a cold email is filled by a resolver that
// walks from the most to the least reliable source. Reviews of the
// generated records are attributed back to the resolvers that produced
// the criticized fields.
//
// Usage:
//
//	kaleads serve       # MCP server (stdio transport)
//	kaleads http        # REST API
//	kaleads generate    # one-shot generation from the command line
package main

import (
	"fmt"
	"os"

	"github.com/Tegath/kaleads/internal/config"
	"github.com/Tegath/kaleads/internal/logging"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

// cli carries the state shared by every subcommand.
type cli struct {
	// Global flags
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "kaleads",
		Short: "kaleads - outreach field resolution with fallback cascades",
		Long: `kaleads resolves the personalization fields of a cold outreach email
(industry, competitor, persona, pain point, signal, tech stack, proof)
for one target company. Each field walks a cascade from client context
to web search, site inspection, inference and finally a generic default,
and records which tier produced the value.

Configuration is read from kaleads.yaml (working directory or
$XDG_CONFIG_HOME/kaleads) and KALEADS_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Config file (default: kaleads.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(c.serveCmd())
	root.AddCommand(c.httpCmd())
	root.AddCommand(c.generateCmd())
	root.AddCommand(versionCmd())
	return root
}

// setup loads the configuration and builds the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	v, err := config.NewViper(c.configFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("config loaded", zap.String("file", used))
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
