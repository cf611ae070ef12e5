// Package ingest loads text corpora into the chunk store and the vector index.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed corpus file.
type Document struct {
	Source   string
	Metadata map[string]string
	Body     string
}

// Piece is one chunk of a document body.
type Piece struct {
	Ordinal int
	Text    string
	Hash    string
}

// ChunkerConfig holds chunker configuration.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits documents into paragraph-aligned chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker. Sizes are in bytes.
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	return &Chunker{chunkSize: cfg.ChunkSize, chunkOverlap: cfg.ChunkOverlap}
}

// Parse separates optional YAML frontmatter from the body. Scalar
// frontmatter values become string metadata; nested values are ignored.
func Parse(source, content string) (*Document, error) {
	doc := &Document{Source: source, Metadata: map[string]string{}, Body: content}

	if !strings.HasPrefix(strings.TrimSpace(content), "---") {
		return doc, nil
	}

	lines := strings.Split(strings.TrimLeft(content, " \t\r\n"), "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("%s: unclosed YAML frontmatter", source)
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &raw); err != nil {
		return nil, fmt.Errorf("%s: frontmatter: %w", source, err)
	}
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any, nil:
			continue
		}
		doc.Metadata[k] = fmt.Sprint(v)
	}
	doc.Body = strings.Join(lines[end+1:], "\n")
	return doc, nil
}

var (
	mdHeader  = regexp.MustCompile(`(?m)^#+\s*`)
	mdEmph    = regexp.MustCompile(`\*+([^*]+)\*+`)
	mdImage   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdComment = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// CleanMarkdown strips headers, emphasis, links, images and HTML comments.
func CleanMarkdown(content string) string {
	content = mdComment.ReplaceAllString(content, "")
	content = mdImage.ReplaceAllString(content, "")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdEmph.ReplaceAllString(content, "$1")
	content = mdHeader.ReplaceAllString(content, "")
	return content
}

// Split chunks body by paragraphs. A chunk grows until the next paragraph
// would push it past the chunk size; the following chunk starts with the
// tail of the previous one. A single oversized paragraph is kept whole.
func (c *Chunker) Split(body string) []Piece {
	paragraphs := strings.Split(strings.ReplaceAll(CleanMarkdown(body), "\r\n", "\n"), "\n\n")

	var (
		pieces  []Piece
		current strings.Builder
		fresh   bool // current holds at least one paragraph beyond the overlap
	)
	flush := func() {
		text := strings.TrimSpace(current.String())
		if text == "" || !fresh {
			return
		}
		pieces = append(pieces, Piece{Ordinal: len(pieces), Text: text, Hash: ContentHash(text)})
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if fresh && current.Len()+len(para) > c.chunkSize {
			flush()
			overlap := overlapText(current.String(), c.chunkOverlap)
			current.Reset()
			current.WriteString(overlap)
			fresh = false
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		fresh = true
	}
	flush()
	return pieces
}

// overlapText returns roughly the last maxLen bytes of text, starting at a
// word boundary.
func overlapText(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(text) <= maxLen {
		return text
	}
	overlap := text[len(text)-maxLen:]
	if idx := strings.Index(overlap, " "); idx >= 0 {
		overlap = overlap[idx+1:]
	}
	return overlap
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ChunkID derives a stable chunk id from the source and the chunk content.
func ChunkID(source, hash string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + hash))
	return hex.EncodeToString(sum[:8])
}
