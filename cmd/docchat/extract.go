package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/ingestion"
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE...",
	Short: "Extract text from documents through the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

var extractQuiet bool

func init() {
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "Print only digests and cache status")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	failed := 0
	for _, path := range args {
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		extract, err := extraction.ForFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}

		res, err := e.cache.ExtractOrFetch(ctx, doc, extract)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}

		status := "extracted"
		if res.FromCache {
			status = "cached"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", res.Digest, status, path)
		if !extractQuiet {
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR",
	Short: "Warm the extraction cache from a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var ingestWatch bool

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Keep watching the directory for new files")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	processor := ingestion.NewProcessor(e.cache, int64(e.cfg.Server.BodyLimit))
	if ingestWatch {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s, press Ctrl-C to stop\n", args[0])
		return processor.Watch(ctx, args[0])
	}

	summary, err := processor.ProcessDir(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "processed %d (%d cached), skipped %d, failed %d\n",
		summary.Processed, summary.Cached, summary.Skipped, summary.Failed)
	return nil
}

func baseName(path string) string {
	return filepath.Base(path)
}
