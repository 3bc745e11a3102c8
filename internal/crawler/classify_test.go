package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want Classification
	}{
		{"https://example.com", ClassCrawlable},
		{"https://example.com/", ClassCrawlable},
		{"https://example.com/a", ClassCrawlable},
		{"https://example.com/index.html", ClassCrawlable},
		{"https://example.com/page.php?id=1", ClassCrawlable},
		{"https://example.com/logo.png", ClassMedia},
		{"https://example.com/LOGO.PNG", ClassMedia},
		{"https://example.com/report.pdf?download=1", ClassMedia},
		{"https://example.com/clip.mp4#t=10", ClassMedia},
		{"https://example.com/archive.tar.gz", ClassMedia},
		{"https://example.com/static/app.js", ClassWebSupport},
		{"https://example.com/static/site.CSS", ClassWebSupport},
		{"https://example.com/fonts/inter.woff2", ClassWebSupport},
		{"https://example.com/site.webmanifest", ClassWebSupport},
		{"https://example.com/feed.xml", ClassWebSupport},
		{"https://example.com/v1.2/docs", ClassCrawlable},
		{"https://example.com/dir.jpg/page", ClassCrawlable},
		{"://bad url", ClassCrawlable},
		{"", ClassCrawlable},
	}

	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.url))
		})
	}
}

func TestClassificationInitialStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusPending, ClassCrawlable.InitialStatus())
	assert.Equal(t, StatusCrawled, ClassMedia.InitialStatus())
	assert.Equal(t, StatusCrawled, ClassWebSupport.InitialStatus())
}
