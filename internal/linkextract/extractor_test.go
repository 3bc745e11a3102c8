package linkextract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/a">relative</a>
		<a href="https://example.com/logo.png">image</a>
		<a href="b/c?x=1#frag">nested</a>
		<a href="/a#again">duplicate after fragment strip</a>
		<a href="https://other.example/">external</a>
		<a href="javascript:void(0)">js</a>
		<a href="MAILTO:someone@example.com">mail</a>
		<a href="tel:+15555555555">phone</a>
		<a href="#top">anchor</a>
		<a href="ftp://example.com/file">ftp</a>
		<a href="  ">blank</a>
		<a>no href</a>
	</body></html>`

	links, err := New().ExtractLinks([]byte(html), "https://example.com/dir/page")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/logo.png",
		"https://example.com/dir/b/c?x=1",
		"https://other.example/",
	}, links)
}

func TestExtractLinksHonorsBaseElement(t *testing.T) {
	t.Parallel()

	html := `<html><head><base href="https://cdn.example.com/root/"></head>
		<body><a href="page">p</a></body></html>`

	links, err := New().ExtractLinks([]byte(html), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/root/page"}, links)
}

func TestExtractLinksMalformedContent(t *testing.T) {
	t.Parallel()

	links, err := New().ExtractLinks([]byte("\x00\x01 not html <a href="), "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestExtractLinksBadBase(t *testing.T) {
	t.Parallel()

	_, err := New().ExtractLinks([]byte(`<a href="/a">a</a>`), "://bad")
	require.Error(t, err)
}
