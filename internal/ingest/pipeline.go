package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// ChunkStore persists corpus chunks.
type ChunkStore interface {
	Upsert(ctx context.Context, chunks ...*storage.Chunk) error
	DeleteBySource(ctx context.Context, source string) (int64, error)
	List(ctx context.Context, source string) ([]*storage.Chunk, error)
}

// Indexer makes documents searchable.
type Indexer interface {
	Index(ctx context.Context, docs []retrieval.Document, onBatch func(done int)) error
}

// Extensions lists the file extensions IngestDir picks up.
var Extensions = []string{".md", ".markdown", ".txt"}

// Result summarizes an ingestion run.
type Result struct {
	Files       int
	Chunks      int
	Replaced    int64
	Errors      []string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Pipeline reads corpus files, chunks them and stores the chunks.
type Pipeline struct {
	logger  *observability.Logger
	chunker *Chunker
	store   ChunkStore
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(logger *observability.Logger, chunker *Chunker, store ChunkStore) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if chunker == nil {
		chunker = NewChunker(ChunkerConfig{})
	}
	return &Pipeline{logger: logger, chunker: chunker, store: store}
}

// IngestText chunks content and replaces the stored chunks of source.
func (p *Pipeline) IngestText(ctx context.Context, source, content string) (int, int64, error) {
	doc, err := Parse(source, content)
	if err != nil {
		return 0, 0, err
	}

	pieces := p.chunker.Split(doc.Body)
	chunks := make([]*storage.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		meta := make(map[string]string, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["content_hash"] = piece.Hash
		chunks = append(chunks, &storage.Chunk{
			ID:       ChunkID(source, piece.Hash),
			Source:   source,
			Ordinal:  piece.Ordinal,
			Text:     piece.Text,
			Metadata: meta,
		})
	}

	replaced, err := p.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, 0, fmt.Errorf("clear %s: %w", source, err)
	}
	if err := p.store.Upsert(ctx, chunks...); err != nil {
		return 0, replaced, fmt.Errorf("store %s: %w", source, err)
	}

	p.logger.Debug().
		Str("source", source).
		Int("chunks", len(chunks)).
		Int64("replaced", replaced).
		Msg("Ingested document")
	return len(chunks), replaced, nil
}

// IngestFile ingests one file under the given source name.
func (p *Pipeline) IngestFile(ctx context.Context, path, source string) (int, int64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", path, err)
	}
	if source == "" {
		source = filepath.Base(path)
	}
	return p.IngestText(ctx, source, string(content))
}

// Files lists the corpus files under dir, in lexical order.
func Files(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range Extensions {
			if ext == e {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

// IngestDir ingests every corpus file under dir. Sources are paths relative
// to dir. A failing file is recorded and skipped; onFile, when set, is
// called after each file.
func (p *Pipeline) IngestDir(ctx context.Context, dir string, onFile func(path string)) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		source, err := filepath.Rel(dir, path)
		if err != nil {
			source = filepath.Base(path)
		}
		n, replaced, err := p.IngestFile(ctx, path, filepath.ToSlash(source))
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			p.logger.Warn().Err(err).Str("path", path).Msg("Failed to ingest file")
		} else {
			result.Files++
			result.Chunks += n
			result.Replaced += replaced
		}
		if onFile != nil {
			onFile(path)
		}
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	p.logger.Info().
		Str("dir", dir).
		Int("files", result.Files).
		Int("chunks", result.Chunks).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Ingestion completed")
	return result, nil
}

// LoadIndex indexes every stored chunk and returns how many were indexed.
func LoadIndex(ctx context.Context, store ChunkStore, index Indexer, onBatch func(done int)) (int, error) {
	chunks, err := store.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	docs := make([]retrieval.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = retrieval.Document{ID: c.ID, Source: c.Source, Text: c.Text, Metadata: c.Metadata}
	}
	if err := index.Index(ctx, docs, onBatch); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	return len(docs), nil
}
