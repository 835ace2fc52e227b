package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ghidra_auto_analysis/analysis-service/pkg/config"
	"ghidra_auto_analysis/analysis-service/pkg/engine"
	"ghidra_auto_analysis/analysis-service/pkg/logging"
	"ghidra_auto_analysis/analysis-service/pkg/processor"
)

// These should be set via `go build` during a release.
var (
	GitCommit = "undefined"
	Version   = "local"
)

func main() {
	root := &cobra.Command{
		Use:          "ghidra-auto-analysis",
		Short:        "Analyse binaries with Ghidra and output an analysis database",
		SilenceUsage: true,
	}
	root.AddCommand(
		newRunCommand(),
		newServeCommand(),
		newSubmitCommand(),
		newResultCommand(),
		newVersionCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger it describes.
func setup(out io.Writer) (config.Config, *logrus.Logger, error) {
	bootLog := logging.New(logging.Config{Level: "info", Output: out})
	cfg, err := config.FromEnv(bootLog)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: out,
	})
	return cfg, log, nil
}

// startProcessor runs the service start gate. A missing install dir fails here.
func startProcessor(ctx context.Context, log logrus.FieldLogger, cfg config.Config) (*processor.Processor, error) {
	ghidra, err := engine.NewGhidra(log, engine.GhidraConfig{
		InstallDir: cfg.GhidraInstallDir,
		ScriptsDir: cfg.GhidraScriptsDir,
		ExtraArgs:  cfg.GhidraExtraArgs,
	})
	if err != nil {
		return nil, err
	}
	proc := processor.New(log, cfg.GhidraInstallDir, ghidra)
	if err := proc.Start(ctx); err != nil {
		return nil, err
	}
	return proc, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ghidra-auto-analysis %s (%s)\n", Version, GitCommit)
		},
	}
}
