package service

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 150
)

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides the defaults used when nothing is configured.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    DefaultChunkSize,
		Overlap: DefaultChunkOverlap,
	}
}

// Chunker splits document text into overlapping pieces, preferring paragraph,
// then line, then word boundaries.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewChunker(cfg ChunkConfig) *Chunker {
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = 0
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.Size),
			textsplitter.WithChunkOverlap(cfg.Overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

// Split returns the chunks of text in document order. Blank input yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var textMediaTypes = map[string]bool{
	"application/json":     true,
	"application/xml":      true,
	"application/x-ndjson": true,
	"application/yaml":     true,
	"application/x-yaml":   true,
}

// DecodeText turns an upload into text. Only textual content types are
// accepted, and the bytes must be valid UTF-8; nothing is dropped silently.
func DecodeText(content []byte, contentType string) (string, error) {
	if !isTextual(content, contentType) {
		return "", domain.ErrUnsupportedContent
	}

	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return "", domain.ErrUnsupportedContent
	}
	return string(content), nil
}

func isTextual(content []byte, contentType string) bool {
	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return false
		}
		mediaType = strings.ToLower(mt)
	}

	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case textMediaTypes[mediaType]:
		return true
	case mediaType == "" || mediaType == "application/octet-stream":
		sniffed := http.DetectContentType(content)
		return strings.HasPrefix(sniffed, "text/")
	}
	return false
}
