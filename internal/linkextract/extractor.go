// Package linkextract pulls outbound links from HTML documents with goquery.
package linkextract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/frontier-crawler/internal/crawler"
)

// Extractor implements crawler.LinkExtractor.
type Extractor struct{}

var _ crawler.LinkExtractor = Extractor{}

// New returns an Extractor.
func New() Extractor {
	return Extractor{}
}

var skippedPrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// ExtractLinks returns the absolute http(s) targets of every a[href] in body,
// resolved against baseURL (or the document's <base href>), without fragments,
// de-duplicated in document order.
func (Extractor) ExtractLinks(body []byte, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if declared, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = declared
		}
	}

	seen := make(map[string]struct{})
	links := []string{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || hasSkippedPrefix(href) {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		resolved.RawFragment = ""
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}

func hasSkippedPrefix(href string) bool {
	lower := strings.ToLower(href)
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
