package htmlconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"doctype", "<!DOCTYPE html><html><body>Test</body></html>", true},
		{"fragment with many tags", "<div><p>Hello</p><p>World</p></div>", true},
		{"plain text", "This is just plain text", false},
		{"markdown", "# Title\n\nSome *markdown* text", false},
		{"single link", "Check out <a href='x'>this link</a>", false},
		{"two tags with structure", "<table>cell</table> and <b>bold</b>", true},
		{"email brackets", "Contact me at <user@example.com>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeHTML(tt.input))
		})
	}
}

func TestToMarkdownPrefersMainContent(t *testing.T) {
	page := `<!doctype html>
<html>
<head><title>ignored</title><script>var x = 1;</script></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1>Gophers</h1>
<p>Gophers are <strong>burrowing</strong> rodents.</p>
<script>alert("no")</script>
</main>
<footer>copyright</footer>
</body>
</html>`

	md, err := ToMarkdown(page)
	require.NoError(t, err)
	assert.Contains(t, md, "# Gophers")
	assert.Contains(t, md, "**burrowing**")
	assert.NotContains(t, md, "Home")
	assert.NotContains(t, md, "copyright")
	assert.NotContains(t, md, "alert")
}

func TestToMarkdownFallsBackToBody(t *testing.T) {
	md, err := ToMarkdown(`<html><body><h2>Hello</h2><aside>ads</aside><p>World</p></body></html>`)
	require.NoError(t, err)
	assert.Contains(t, md, "## Hello")
	assert.Contains(t, md, "World")
	assert.NotContains(t, md, "ads")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "already markdown", Normalize("already markdown"))
	assert.Contains(t, Normalize("<h1>T</h1><p>a</p><p>b</p>"), "# T")
}
