// Package extract turns accepted response bodies into title, text and links.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// ErrUnsupportedKind is returned for content kinds the extractor does not parse.
var ErrUnsupportedKind = errors.New("no extractor for content kind")

// Extractor converts raw bytes of a known content kind into structured text.
type Extractor interface {
	Extract(ctx context.Context, content []byte, kind models.ContentKind, pageURL string) (*models.ExtractedContent, error)
}

// DefaultExtractor handles HTML and plain text. PDFs are reported as unsupported.
type DefaultExtractor struct {
	cfg      config.ExtractConfig
	counter  *TokenCounter
	chunking ChunkerConfig
	log      *logrus.Entry
}

// NewDefaultExtractor builds the extractor. A tokenizer that fails to load is logged
// and leaves token counts at -1.
func NewDefaultExtractor(cfg config.ExtractConfig, log *logrus.Entry) *DefaultExtractor {
	counter, err := NewTokenCounter(cfg.TokenizerEncoding)
	if err != nil {
		log.Warnf("Tokenizer %q unavailable, token counts disabled: %v", cfg.TokenizerEncoding, err)
		counter = nil
	}
	chunking := DefaultChunkerConfig()
	if cfg.ChunkSize > 0 {
		chunking.MaxChunkSize = cfg.ChunkSize
	}
	if cfg.ChunkOverlap >= 0 && cfg.ChunkOverlap < chunking.MaxChunkSize {
		chunking.ChunkOverlap = cfg.ChunkOverlap
	}
	return &DefaultExtractor{cfg: cfg, counter: counter, chunking: chunking, log: log}
}

// Extract implements Extractor.
func (e *DefaultExtractor) Extract(ctx context.Context, content []byte, kind models.ContentKind, pageURL string) (*models.ExtractedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *models.ExtractedContent
	var markdown string
	switch kind {
	case models.ContentKindHTML:
		page, err := extractHTML(content, pageURL, e.cfg.MaxLinks, e.log)
		if err != nil {
			return nil, utils.WrapErrorf(utils.ErrExtraction, "html %s: %v", pageURL, err)
		}
		out = &models.ExtractedContent{Title: page.title, Text: page.markdown, Links: page.links}
		markdown = page.markdown
	case models.ContentKindPlainText:
		if !utf8.Valid(content) {
			content = []byte(strings.ToValidUTF8(string(content), "�"))
		}
		text := strings.TrimSpace(string(content))
		out = &models.ExtractedContent{Title: firstLine(text), Text: text}
		markdown = text
	case models.ContentKindPDF, models.ContentKindUnsupported:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, string(kind))
	}

	out.Headings = ExtractHeadings([]byte(markdown))
	out.TokenCount = e.counter.Count(out.Text)

	if e.cfg.EnableChunking {
		chunks, err := ChunkMarkdown(markdown, e.chunking, e.counter)
		if err != nil {
			e.log.WithField("url", pageURL).Warnf("Chunking failed: %v", err)
		} else {
			out.Chunks = chunks
		}
	}
	return out, nil
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) > 120 {
		line = string([]rune(line)[:120])
	}
	return line
}
