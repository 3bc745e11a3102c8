package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims(t *testing.T) {
	t.Parallel()

	c := NewClaims()
	require.True(t, c.Add("https://b.example"))
	require.True(t, c.Add("https://a.example"))
	require.False(t, c.Add("https://a.example"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.List())

	c.Remove("https://a.example")
	assert.Equal(t, []string{"https://b.example"}, c.List())
	assert.True(t, c.Add("https://a.example"))

	c.Clear()
	assert.Empty(t, c.List())
}
