package index

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aura-dev/aura/internal/core"
)

// TextIngestor handles markdown and plain text. Markdown splits at headers,
// plain text at paragraph boundaries.
type TextIngestor struct {
	chunker *Chunker
}

// NewTextIngestor creates the text ingestor.
func NewTextIngestor(chunker *Chunker) *TextIngestor {
	return &TextIngestor{chunker: chunker}
}

func (t *TextIngestor) ID() string    { return "text" }
func (t *TextIngestor) Priority() int { return 50 }

func (t *TextIngestor) CanIngest(path string) bool {
	return hasExt(path, "md", "markdown", "txt", "rst", "adoc")
}

func (t *TextIngestor) Ingest(ctx context.Context, workspaceID, relPath string, content []byte) (*FileIndex, error) {
	markdown := hasExt(relPath, "md", "markdown")

	var parts []TextChunk
	var contentType core.ContentType
	if markdown {
		parts = t.chunker.SplitMarkdown(string(content))
		contentType = core.ContentSection
	} else {
		parts = t.chunker.SplitPlainText(string(content))
		contentType = core.ContentParagraph
	}

	chunks := make([]core.Chunk, 0, len(parts))
	for i, part := range parts {
		chunk := core.Chunk{
			ContentID:   chunkContentID(workspaceID, relPath, i),
			SourcePath:  relPath,
			WorkspaceID: workspaceID,
			ChunkIndex:  i,
			Text:        part.Text,
			ContentType: contentType,
			StartLine:   part.StartLine,
			EndLine:     part.EndLine,
		}
		if part.Heading != "" {
			chunk.SymbolName = part.Heading
			chunk.Metadata = map[string]string{"heading": part.Heading}
		}
		chunks = append(chunks, chunk)
	}
	return &FileIndex{Chunks: chunks}, nil
}

// FallbackIngestor accepts any file and stores it as a single chunk, so no
// text file disappears from retrieval just because nothing parses it.
type FallbackIngestor struct {
	// MaxFileSize caps how much of a file is chunked; 0 means no cap.
	MaxFileSize int
}

// NewFallbackIngestor creates the catch-all ingestor.
func NewFallbackIngestor() *FallbackIngestor {
	return &FallbackIngestor{MaxFileSize: 256 * 1024}
}

func (f *FallbackIngestor) ID() string            { return "fallback" }
func (f *FallbackIngestor) Priority() int         { return 1000 }
func (f *FallbackIngestor) CanIngest(string) bool { return true }

func (f *FallbackIngestor) Ingest(ctx context.Context, workspaceID, relPath string, content []byte) (*FileIndex, error) {
	text := string(content)
	if f.MaxFileSize > 0 && len(text) > f.MaxFileSize {
		text = text[:f.MaxFileSize]
	}
	if strings.TrimSpace(text) == "" {
		return &FileIndex{}, nil
	}
	chunk := core.Chunk{
		ContentID:   chunkContentID(workspaceID, relPath, 0),
		SourcePath:  relPath,
		WorkspaceID: workspaceID,
		ChunkIndex:  0,
		Text:        text,
		ContentType: core.ContentFile,
		Language:    strings.TrimPrefix(filepath.Ext(relPath), "."),
		StartLine:   1,
		EndLine:     strings.Count(text, "\n") + 1,
		Metadata:    map[string]string{"warning": "no_parser_available"},
	}
	return &FileIndex{Chunks: []core.Chunk{chunk}}, nil
}
