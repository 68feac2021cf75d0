package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
)

type htmlPage struct {
	title    string
	markdown string
	links    []string
}

// extractHTML parses the document once with goquery for title and links, isolates
// the main content with readability (falling back to the cleaned <body>), and
// converts that content to markdown.
func extractHTML(content []byte, pageURL string, maxLinks int, log *logrus.Entry) (*htmlPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)

	page := &htmlPage{
		title: strings.TrimSpace(doc.Find("title").First().Text()),
		links: collectLinks(doc, base, maxLinks),
	}

	mainHTML := ""
	if base != nil {
		article, rErr := readability.FromReader(bytes.NewReader(content), base)
		if rErr != nil {
			log.WithField("url", pageURL).Debugf("Readability failed, using <body>: %v", rErr)
		} else {
			mainHTML = article.Content
			if page.title == "" {
				page.title = strings.TrimSpace(article.Title)
			}
		}
	}
	if strings.TrimSpace(mainHTML) == "" {
		body := doc.Find("body")
		cleanupHTML(body)
		mainHTML, err = body.Html()
		if err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}
	}

	domain := ""
	if base != nil {
		domain = base.Host
	}
	converter := md.NewConverter(domain, true, nil)
	markdown, err := converter.ConvertString(mainHTML)
	if err != nil {
		return nil, fmt.Errorf("markdown conversion: %w", err)
	}
	page.markdown = strings.TrimSpace(markdown)
	if page.title == "" {
		if headings := ExtractHeadings([]byte(page.markdown)); len(headings) > 0 {
			page.title = headings[0]
		}
	}
	return page, nil
}

// cleanupHTML removes elements that never carry readable content.
func cleanupHTML(content *goquery.Selection) {
	content.Find("script, style, noscript, iframe, svg, nav, footer, header, form").Remove()
	content.Find("a.headerlink, a.permalink").Remove()
	content.Find("a").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if text == "¶" || text == "#" || (text == "" && strings.HasPrefix(href, "#")) {
			s.Remove()
		}
	})
}

// collectLinks returns absolute, de-duplicated http(s) links in document order,
// capped at maxLinks (0 = no cap).
func collectLinks(doc *goquery.Document, base *url.URL, maxLinks int) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		var linkURL *url.URL
		var err error
		if base != nil {
			linkURL, err = base.Parse(href)
		} else {
			linkURL, err = url.Parse(href)
		}
		if err != nil || (linkURL.Scheme != "http" && linkURL.Scheme != "https") {
			return true
		}
		linkURL.Fragment = ""
		abs := linkURL.String()
		if seen[abs] {
			return true
		}
		seen[abs] = true
		links = append(links, abs)
		return maxLinks <= 0 || len(links) < maxLinks
	})
	return links
}
