package classify

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// Decision is the classifier's verdict for one URL or response
type Decision struct {
	Accept    bool
	Reason    models.SkipReason  // Set when Accept is false
	Kind      models.ContentKind // Resolved content family
	MediaType string             // Lowercased media type without parameters
}

// Err describes a rejection with the matching sentinel; nil when accepted.
func (d Decision) Err() error {
	switch {
	case d.Accept:
		return nil
	case d.Reason == models.SkipReasonUnsupportedContentType:
		if d.MediaType == "" {
			return utils.ErrUnsupportedContentType
		}
		return utils.WrapErrorf(utils.ErrUnsupportedContentType, "%s", d.MediaType)
	default:
		return utils.WrapErrorf(utils.ErrBlockedURL, "%s", d.Reason)
	}
}

func accept(kind models.ContentKind, mediaType string) Decision {
	return Decision{Accept: true, Kind: kind, MediaType: mediaType}
}

func skip(reason models.SkipReason, mediaType string) Decision {
	return Decision{Reason: reason, Kind: models.ContentKindUnsupported, MediaType: mediaType}
}

// Classifier decides, before and after the request, whether a URL's content is wanted.
// All methods are pure and safe for concurrent use.
type Classifier struct {
	allowed         map[string]bool // exact media types
	allowedPrefixes []string        // from "type/*" wildcards, stored as "type/"
	blockedExts     map[string]bool // lowercased, with leading dot
	blockedPatterns []*regexp.Regexp
}

// New builds a Classifier from the fetch config. Fails only on invalid regex patterns.
func New(cfg config.FetchConfig) (*Classifier, error) {
	patterns, err := utils.CompileRegexPatterns(cfg.BlockedURLPatterns)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		allowed:         make(map[string]bool, len(cfg.AllowedContentTypes)),
		blockedExts:     make(map[string]bool, len(cfg.BlockedExtensions)),
		blockedPatterns: patterns,
	}
	for _, ct := range cfg.AllowedContentTypes {
		ct = strings.ToLower(strings.TrimSpace(ct))
		if ct == "" {
			continue
		}
		if strings.HasSuffix(ct, "/*") {
			c.allowedPrefixes = append(c.allowedPrefixes, strings.TrimSuffix(ct, "*"))
			continue
		}
		c.allowed[ct] = true
	}
	for _, ext := range cfg.BlockedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.blockedExts[ext] = true
	}
	return c, nil
}

// PreFlight runs the cheap checks that need no connection: blocked URL patterns, then
// the path's file extension. A hint, when present, must itself be an allowed type.
func (c *Classifier) PreFlight(rawURL, contentTypeHint string) Decision {
	if utils.MatchesAny(c.blockedPatterns, rawURL) {
		return skip(models.SkipReasonBlockedURL, "")
	}

	ext := Extension(rawURL)
	if ext != "" && c.blockedExts[ext] {
		return skip(models.SkipReasonBlockedExtension, "")
	}

	if hint := MediaType(contentTypeHint); hint != "" {
		if !c.isAllowed(hint) {
			return skip(models.SkipReasonUnsupportedContentType, hint)
		}
		return accept(KindOf(hint), hint)
	}

	// Without a response yet, the kind is only a guess from the extension.
	guess := MediaType(mime.TypeByExtension(ext))
	return accept(KindOf(guess), guess)
}

// PostResponse checks the declared Content-Type against the allow-list.
// An empty declaration falls back to the hint, then to the URL extension.
func (c *Classifier) PostResponse(rawURL, contentTypeHint, responseContentType string) Decision {
	mediaType := MediaType(responseContentType)
	if mediaType == "" {
		mediaType = MediaType(contentTypeHint)
	}
	if mediaType == "" {
		mediaType = MediaType(mime.TypeByExtension(Extension(rawURL)))
	}
	if mediaType == "" {
		// Nothing declared and nothing inferable: treat as HTML, the common case for bare URLs.
		mediaType = "text/html"
	}
	if !c.isAllowed(mediaType) {
		return skip(models.SkipReasonUnsupportedContentType, mediaType)
	}
	kind := KindOf(mediaType)
	if kind == models.ContentKindUnsupported {
		return skip(models.SkipReasonUnsupportedContentType, mediaType)
	}
	return accept(kind, mediaType)
}

// Classify combines both filtering points. With an empty responseContentType only
// the pre-flight checks run.
func (c *Classifier) Classify(rawURL, contentTypeHint, responseContentType string) Decision {
	pre := c.PreFlight(rawURL, contentTypeHint)
	if !pre.Accept || responseContentType == "" {
		return pre
	}
	return c.PostResponse(rawURL, contentTypeHint, responseContentType)
}

func (c *Classifier) isAllowed(mediaType string) bool {
	if c.allowed[mediaType] {
		return true
	}
	for _, prefix := range c.allowedPrefixes {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	return false
}

// MediaType lowercases a Content-Type value and strips its parameters.
func MediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(mt)
	}
	// Malformed parameters: keep what precedes the first ';'
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Extension returns the lowercased file extension of the URL path, including the dot.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// KindOf resolves a media type to the closed set of content kinds.
func KindOf(mediaType string) models.ContentKind {
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return models.ContentKindHTML
	case mediaType == "application/pdf":
		return models.ContentKindPDF
	case mediaType == "text/plain", mediaType == "text/markdown",
		mediaType == "application/json", mediaType == "text/csv",
		mediaType == "application/xml", mediaType == "text/xml":
		return models.ContentKindPlainText
	case strings.HasPrefix(mediaType, "text/"):
		return models.ContentKindPlainText
	}
	return models.ContentKindUnsupported
}
