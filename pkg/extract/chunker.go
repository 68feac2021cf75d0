package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Sriram-PR/webfetch/pkg/models"
)

// ChunkerConfig holds configuration for the chunker.
type ChunkerConfig struct {
	MaxChunkSize int // Maximum chunk size in tokens (triggers recursive split if exceeded)
	ChunkOverlap int // Overlap between chunks in tokens (for recursive fallback)
}

// DefaultChunkerConfig returns defaults sized for retrieval prompts.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxChunkSize: 512,
		ChunkOverlap: 50,
	}
}

// headingRegex matches markdown headings at the start of lines.
var headingRegex = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// ChunkMarkdown splits markdown into chunks: first by headers, keeping the heading
// hierarchy, then recursively by characters for any section still over MaxChunkSize.
// Lengths are measured in tokens when counter is usable, otherwise in runes / 4.
func ChunkMarkdown(markdown string, cfg ChunkerConfig, counter *TokenCounter) ([]models.Chunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	if cfg.MaxChunkSize <= 0 {
		cfg = DefaultChunkerConfig()
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.MaxChunkSize {
		cfg.ChunkOverlap = 0
	}

	lenFunc := func(s string) int {
		if n := counter.Count(s); n >= 0 {
			return n
		}
		return utf8.RuneCountInString(s) / 4
	}

	recursiveSplitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)

	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithHeadingHierarchy(true),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSecondSplitter(recursiveSplitter),
		textsplitter.WithLenFunc(lenFunc),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content:          part,
			HeadingHierarchy: headingHierarchy(part),
			TokenCount:       counter.Count(part),
		})
	}
	return chunks, nil
}

// headingHierarchy returns the chunk's headings in the order they appear.
func headingHierarchy(content string) []string {
	matches := headingRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	hierarchy := make([]string, 0, len(matches))
	for _, match := range matches {
		if heading := strings.TrimSpace(match[2]); heading != "" {
			hierarchy = append(hierarchy, heading)
		}
	}
	return hierarchy
}
