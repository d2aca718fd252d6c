// Command hredeval scores decoded dialog responses against reference
// responses with multi-reference BLEU precision and recall.
//
// It runs one-shot evaluations over JSON Lines batch files, or as a service
// that consumes decoded batches from Kafka and serves the resulting reports
// over HTTP and RPC.
//
// Usage:
//
//	hredeval evaluate --input data/test.jsonl [-c configs/development.yaml]
//	hredeval serve -c configs/development.yaml
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the flags shared by every command and the config they load.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "hredeval",
		Short:         "BLEU precision/recall evaluation for hierarchical dialog models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		a.evaluateCmd(),
		a.serveCmd(),
		a.publishCmd(),
		a.scoreCmd(),
		a.profilesCmd(),
		versionCmd(),
	)
	return root
}

// load reads the config and sets up logging on stderr, keeping stdout for
// command output.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}

// dataPath resolves p against data.root unless it is empty or absolute.
func (a *app) dataPath(p string) string {
	if p == "" || filepath.IsAbs(p) || a.cfg.Data.Root == "" {
		return p
	}
	return filepath.Join(a.cfg.Data.Root, p)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hredeval %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
