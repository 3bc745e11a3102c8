package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strip default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strip default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keep custom port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"drop fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sort query", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"bare host untouched", "https://example.com", "https://example.com"},
		{"trim whitespace", "  https://example.com/a ", "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "/relative/path", "mailto:a@example.com", "ftp://example.com/file", "javascript:void(0)"} {
		_, err := NormalizeURL(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrUnsupportedURL), in)
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", HostOf("https://Example.com:8443/a"))
	assert.Equal(t, "", HostOf("://bad"))
}

func TestCandidateValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Candidate{URL: "https://example.com", Depth: 0, MaxDepth: 2}.Validate())
	require.NoError(t, Candidate{URL: "https://example.com/a", Depth: 2, MaxDepth: 2}.Validate())

	for _, c := range []Candidate{
		{URL: "", MaxDepth: 1},
		{URL: "https://example.com", Depth: -1, MaxDepth: 1},
		{URL: "https://example.com", Depth: 3, MaxDepth: 2},
	} {
		err := c.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidItem)
	}
}
