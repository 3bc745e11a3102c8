package crawler

import (
	"net/url"
	"path"
	"strings"
)

var mediaExtensions = extensionSet(
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".ico", ".tiff", ".tif",
	".mp4", ".webm", ".ogg", ".mov", ".avi", ".mkv", ".flv", ".wmv",
	".mp3", ".wav", ".flac", ".aac",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".7z", ".tar", ".gz",
)

var webSupportExtensions = extensionSet(
	".js", ".mjs", ".css", ".scss", ".sass",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".json", ".xml", ".webmanifest", ".map",
)

func extensionSet(exts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return set
}

// Classify maps a URL to crawlable, media or web-support by its path extension.
// Query strings and fragments are ignored; unparseable input is crawlable.
func Classify(rawURL string) Classification {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return ClassCrawlable
	}
	if _, ok := mediaExtensions[ext]; ok {
		return ClassMedia
	}
	if _, ok := webSupportExtensions[ext]; ok {
		return ClassWebSupport
	}
	return ClassCrawlable
}
