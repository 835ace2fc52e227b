package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ghidra_auto_analysis/analysis-service/pkg/report"
	"ghidra_auto_analysis/analysis-service/pkg/storage"
)

func newSubmitCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Queue a file for the serve workers and print its submission id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd.Context(), cmd.OutOrStdout(), args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Submission name, defaults to the file base name")
	return cmd
}

func submit(ctx context.Context, out io.Writer, path, name string) error {
	cfg, log, err := setup(os.Stderr)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(abs)
	}

	rdb, err := storage.NewRedisClient(ctx, log, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		return err
	}
	defer rdb.Close()

	msg := storage.Message{
		SID:         uuid.NewString(),
		FilePath:    abs,
		FileName:    name,
		SubmittedAt: time.Now().UTC(),
	}
	if err := storage.NewQueue(rdb, cfg.Redis.Prefix).Push(ctx, msg); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, msg.SID)
	return err
}

func newResultCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "result <sid>",
		Short: "Print the stored result of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showResult(cmd.Context(), cmd.OutOrStdout(), args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(report.FormatTable), "Output format: table, json or yaml")
	return cmd
}

func showResult(ctx context.Context, out io.Writer, sid, output string) error {
	format, err := report.ParseFormat(output)
	if err != nil {
		return err
	}
	cfg, log, err := setup(os.Stderr)
	if err != nil {
		return err
	}

	rdb, err := storage.NewRedisClient(ctx, log, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		return err
	}
	defer rdb.Close()

	rec, err := storage.NewResultStore(rdb, cfg.Redis.Prefix, 0).Get(ctx, sid)
	if err != nil {
		return fmt.Errorf("submission %s: %w", sid, err)
	}
	if rec.Failed() {
		return fmt.Errorf("submission %s failed: %s", sid, rec.Error)
	}
	return report.Write(out, format, rec.Result, rec.Supplementary)
}
