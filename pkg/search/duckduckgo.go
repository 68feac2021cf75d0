package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

const (
	defaultDDGHTMLBase    = "https://html.duckduckgo.com"
	defaultDDGInstantBase = "https://api.duckduckgo.com"
	maxSearchBodyBytes    = 2 << 20
)

// DuckDuckGo scrapes the no-JavaScript results page, which returns organic links.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGo creates the HTML results provider. An empty baseURL uses the public endpoint.
func NewDuckDuckGo(client *http.Client, baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = defaultDDGHTMLBase
	}
	return &DuckDuckGo{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *DuckDuckGo) Name() string { return ProviderDuckDuckGo }

func (p *DuckDuckGo) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", utils.ErrParsing)
	}

	body, err := get(ctx, p.client, p.baseURL+"/html/?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxSearchBodyBytes))
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "search results page: %v", err)
	}

	resp := &Response{Query: query, Provider: p.Name()}
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := unwrapRedirect(href)
		if target == "" {
			return true
		}
		resp.Results = append(resp.Results, Result{
			Title:       strings.TrimSpace(link.Text()),
			URL:         target,
			Description: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
		return req.Count <= 0 || len(resp.Results) < req.Count
	})

	resp.NoResults = len(resp.Results) == 0
	resp.TookMs = time.Since(start).Milliseconds()
	return resp, nil
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg= click-tracking links to the target.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Host, "duckduckgo.com") || (u.Host == "" && strings.HasPrefix(u.Path, "/l/")) {
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		u, err = url.Parse(target)
		if err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// DuckDuckGoInstant queries the Instant Answer API. It returns topic links rather
// than organic results, but needs no HTML parsing.
type DuckDuckGoInstant struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGoInstant creates the Instant Answer provider.
func NewDuckDuckGoInstant(client *http.Client, baseURL string) *DuckDuckGoInstant {
	if baseURL == "" {
		baseURL = defaultDDGInstantBase
	}
	return &DuckDuckGoInstant{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *DuckDuckGoInstant) Name() string { return ProviderDuckDuckGoInstant }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgInstantResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Answer        string     `json:"Answer"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (p *DuckDuckGoInstant) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", utils.ErrParsing)
	}

	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1", p.baseURL, url.QueryEscape(query))
	body, err := get(ctx, p.client, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raw ddgInstantResponse
	if err := json.NewDecoder(io.LimitReader(body, maxSearchBodyBytes)).Decode(&raw); err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "instant answer json: %v", err)
	}

	resp := &Response{
		Query:    query,
		Provider: p.Name(),
		Answer:   raw.Answer,
		Summary:  raw.AbstractText,
	}
	if raw.AbstractURL != "" {
		resp.Results = append(resp.Results, Result{Title: raw.Heading, URL: raw.AbstractURL, Description: raw.AbstractText})
	}
	var walk func(t ddgTopic)
	walk = func(t ddgTopic) {
		if t.FirstURL != "" && t.Text != "" {
			title, snippet := splitTopicText(t.Text)
			resp.Results = append(resp.Results, Result{Title: title, URL: t.FirstURL, Description: snippet})
		}
		for _, child := range t.Topics {
			walk(child)
		}
	}
	for _, t := range raw.RelatedTopics {
		walk(t)
	}
	if req.Count > 0 && len(resp.Results) > req.Count {
		resp.Results = resp.Results[:req.Count]
	}

	resp.NoResults = resp.Answer == "" && resp.Summary == "" && len(resp.Results) == 0
	resp.TookMs = time.Since(start).Milliseconds()
	return resp, nil
}

func splitTopicText(text string) (title, snippet string) {
	if t, s, ok := strings.Cut(text, " - "); ok {
		return strings.TrimSpace(t), strings.TrimSpace(s)
	}
	return strings.TrimSpace(text), ""
}

// get issues a GET and returns the body of a 2xx response; the caller closes it.
func get(ctx context.Context, client *http.Client, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrRequestCreation, "%v", err)
	}
	req.Header.Set("User-Agent", config.DefaultUserAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search request: %w", utils.ErrConnection, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: search status %d: %s", utils.ErrServerHTTPError, resp.StatusCode, strings.TrimSpace(string(snippet)))
		}
		return nil, fmt.Errorf("%w: search status %d: %s", utils.ErrClientHTTPError, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}
