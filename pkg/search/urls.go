package search

import (
	"strings"

	"github.com/Sriram-PR/webfetch/pkg/parse"
)

// Filters narrow search results down to the URLs worth fetching.
type Filters struct {
	MaxURLs        int      // 0 = no cap
	IncludeDomains []string // When set, only these domains (and their subdomains) pass
	ExcludeDomains []string
}

// URLs returns result URLs in rank order: http(s) only, de-duplicated by normalized
// form, filtered by domain and capped at MaxURLs.
func URLs(results []Result, f Filters) []string {
	seen := make(map[string]bool, len(results))
	var out []string
	for _, r := range results {
		key, u, err := parse.ParseAndNormalize(r.URL)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if len(f.IncludeDomains) > 0 && !matchesAny(host, f.IncludeDomains) {
			continue
		}
		if matchesAny(host, f.ExcludeDomains) {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u.String())
		if f.MaxURLs > 0 && len(out) >= f.MaxURLs {
			break
		}
	}
	return out
}

// matchesAny reports whether host equals a domain or is a subdomain of one.
func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
