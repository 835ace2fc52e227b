package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ghidra_auto_analysis/analysis-service/pkg/report"
	"ghidra_auto_analysis/analysis-service/pkg/result"
	"ghidra_auto_analysis/analysis-service/pkg/storage"
	"ghidra_auto_analysis/analysis-service/pkg/task"
)

type runOptions struct {
	name    string
	workDir string
	output  string
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Analyse one file locally and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Submission name, defaults to the file base name")
	cmd.Flags().StringVar(&opts.workDir, "workdir", "", "Scratch directory to keep; a temporary one is used when empty")
	cmd.Flags().StringVarP(&opts.output, "output", "o", string(report.FormatTable), "Output format: table, json or yaml")
	return cmd
}

func runOnce(ctx context.Context, out io.Writer, path string, opts runOptions) error {
	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	// Logs go to stderr so the report can be piped.
	cfg, log, err := setup(os.Stderr)
	if err != nil {
		return err
	}

	proc, err := startProcessor(ctx, log, cfg)
	if err != nil {
		return err
	}

	name := opts.name
	if name == "" {
		name = filepath.Base(path)
	}

	workDir := opts.workDir
	if workDir == "" {
		workDir, err = os.MkdirTemp(cfg.WorkDir, "task-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(workDir)
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}

	tsk, err := task.New(uuid.NewString(), path, name, workDir)
	if err != nil {
		return err
	}
	if err := proc.Execute(ctx, tsk); err != nil {
		return fmt.Errorf("analysing %s: %w", path, err)
	}

	sups := append([]result.Supplementary(nil), tsk.Supplementary()...)
	if opts.workDir == "" {
		artifacts, err := storage.NewArtifactStore(cfg.ArtifactDir)
		if err != nil {
			return err
		}
		for i, sup := range sups {
			stored, err := artifacts.Put(sup)
			if err != nil {
				return err
			}
			sups[i].Path = stored
		}
	}

	return report.Write(out, format, tsk.Result(), sups)
}
