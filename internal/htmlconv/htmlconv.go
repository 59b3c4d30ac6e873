// Package htmlconv turns fetched web pages into Markdown for the model.
package htmlconv

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/codefionn/canvaschat/internal/logger"
	"golang.org/x/net/html"
)

var (
	tagPattern     = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
	structuralTags = []string{"<body", "<div", "<table", "<ul>", "<ol>", "<h1", "<h2", "<article", "<main"}
)

// minTags is the tag count above which text is treated as HTML outright.
const minTags = 3

// Elements that never carry page content.
var dropped = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"meta": true, "link": true, "head": true,
	"header": true, "footer": true, "nav": true, "aside": true,
	"iframe": true, "svg": true, "form": true, "button": true,
}

var contentHints = []string{
	"content", "main", "article", "post", "entry", "story", "text",
}

// LooksLikeHTML guesses whether body is an HTML document or fragment.
func LooksLikeHTML(body string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(body))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		return true
	}

	tags := len(tagPattern.FindAllStringIndex(body, minTags))
	if tags >= minTags {
		return true
	}
	if tags < 2 {
		return false
	}
	for _, tag := range structuralTags {
		if strings.Contains(trimmed, tag) {
			return true
		}
	}
	return false
}

// ToMarkdown extracts the main content of page and converts it to
// Markdown.
func ToMarkdown(page string) (string, error) {
	cleaned, err := mainContentHTML(page)
	if err != nil {
		logger.Debug("html preprocessing failed, converting raw page: %v", err)
		cleaned = page
	}

	markdown, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}

	markdown = strings.TrimSpace(blankLines.ReplaceAllString(markdown, "\n\n"))
	logger.Debug("converted html to markdown (%d -> %d bytes)", len(page), len(markdown))
	return markdown, nil
}

// Normalize returns body as Markdown when it looks like HTML and unchanged
// otherwise.
func Normalize(body string) string {
	if !LooksLikeHTML(body) {
		return body
	}
	markdown, err := ToMarkdown(body)
	if err != nil {
		logger.Warn("%v", err)
		return body
	}
	return markdown
}

func mainContentHTML(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	root := pickContentRoot(doc)
	prune(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// pickContentRoot prefers <main>, then <article>, then an element whose id
// or class hints at content, then <body>, then the whole document.
func pickContentRoot(doc *html.Node) *html.Node {
	var mainEl, article, hinted, body *html.Node

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "main":
				if mainEl == nil {
					mainEl = n
				}
			case "article":
				if article == nil {
					article = n
				}
			case "body":
				body = n
			default:
				if hinted == nil && hasContentHint(n) {
					hinted = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, candidate := range []*html.Node{mainEl, article, hinted, body} {
		if candidate != nil {
			return candidate
		}
	}
	return doc
}

func hasContentHint(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" {
			continue
		}
		for _, token := range strings.Fields(strings.ToLower(attr.Val)) {
			for _, hint := range contentHints {
				if strings.Contains(token, hint) {
					return true
				}
			}
		}
	}
	return false
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && dropped[strings.ToLower(c.Data)] {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}
