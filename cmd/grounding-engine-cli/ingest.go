package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var (
		source    string
		chunkSize int
		overlap   int
	)

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest Markdown or text documents into the retrieval corpus",
		Long: `Ingest chunks Markdown and plain-text documents and stores the chunks in
the database. Re-ingesting a source replaces its previous chunks.

The path may be a file or a directory; it defaults to retrieval.corpus_dir.
YAML frontmatter is kept as chunk metadata.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := cfg.Retrieval.CorpusDir
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no path given and retrieval.corpus_dir is not set")
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			db, err := app.OpenDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			chunker := ingest.NewChunker(ingest.ChunkerConfig{ChunkSize: chunkSize, ChunkOverlap: overlap})
			pipeline := ingest.NewPipeline(logger, chunker, storage.NewChunkRepository(db))
			ui := NewUI(cmd.OutOrStdout(), outputJSON, noColor)

			if !info.IsDir() {
				if source == "" {
					source = filepath.Base(path)
				}
				n, replaced, err := pipeline.IngestFile(ctx, path, source)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"source":   source,
						"chunks":   n,
						"replaced": replaced,
					})
				}
				ui.Success("Ingested %s: %d chunks (%d replaced)", source, n, replaced)
				return nil
			}

			files, err := ingest.Files(path)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				ui.Warning("No %v files under %s", ingest.Extensions, path)
				return nil
			}

			var onFile func(string)
			var bar *FileProgress
			if !outputJSON {
				bar = NewFileProgress(int64(len(files)), "Ingesting")
				onFile = func(p string) { bar.Advance(filepath.Base(p)) }
			}
			result, err := pipeline.IngestDir(ctx, path, onFile)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"files":       result.Files,
					"chunks":      result.Chunks,
					"replaced":    result.Replaced,
					"errors":      result.Errors,
					"duration_ms": result.Duration.Milliseconds(),
				})
			}

			ui.Section("Ingestion")
			ui.KeyValue("Files", result.Files)
			ui.KeyValue("Chunks", result.Chunks)
			ui.KeyValue("Replaced", result.Replaced)
			ui.KeyValue("Duration", FormatDuration(result.Duration))
			for _, e := range result.Errors {
				ui.Error("%s", e)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d of %d files failed", len(result.Errors), len(files))
			}
			ui.Success("Corpus updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source name for a single file (default: file name)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 512, "maximum chunk length in characters")
	cmd.Flags().IntVar(&overlap, "overlap", 64, "characters carried over between chunks")

	return cmd
}
