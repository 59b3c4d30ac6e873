// Package artifacts extracts thinking and artifact blocks from streamed
// assistant text and renders them as callouts.
package artifacts

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind is the block type.
type Kind string

const (
	KindThinking Kind = "thinking"
	KindArtifact Kind = "artifact"
)

// Block is one <antThinking> or <antArtifact> span of the text. StartIndex
// and EndIndex are byte offsets; an unterminated block ends at len(text).
type Block struct {
	Kind        Kind
	Identifier  string
	Title       string
	ContentType string
	Language    string
	Content     string
	StartIndex  int
	EndIndex    int
}

var (
	startTag  = regexp.MustCompile(`(?i)<ant(thinking|artifact)(?:\s+([^>]+))?>`)
	attribute = regexp.MustCompile(`(\w+)="([^"]*)"`)
	endTags   = map[Kind]*regexp.Regexp{
		KindThinking: regexp.MustCompile(`(?i)</antthinking>`),
		KindArtifact: regexp.MustCompile(`(?i)</antartifact>`),
	}
)

// ExtractBlocks finds all blocks of text, left to right and non-nested.
// Artifacts without an identifier are skipped.
func ExtractBlocks(text string) []Block {
	var blocks []Block
	pos := 0
	for pos < len(text) {
		loc := startTag.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}

		start := pos + loc[0]
		bodyStart := pos + loc[1]
		kind := KindThinking
		if strings.EqualFold(text[pos+loc[2]:pos+loc[3]], "artifact") {
			kind = KindArtifact
		}
		attrs := ""
		if loc[4] >= 0 {
			attrs = text[pos+loc[4] : pos+loc[5]]
		}

		bodyEnd, end := len(text), len(text)
		if endLoc := endTags[kind].FindStringIndex(text[bodyStart:]); endLoc != nil {
			bodyEnd = bodyStart + endLoc[0]
			end = bodyStart + endLoc[1]
		}

		block := Block{
			Kind:       kind,
			Content:    strings.TrimSpace(text[bodyStart:bodyEnd]),
			StartIndex: start,
			EndIndex:   end,
		}
		if kind == KindArtifact {
			applyAttributes(&block, attrs)
		}
		if kind == KindThinking || block.Identifier != "" {
			blocks = append(blocks, block)
		}
		pos = end
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].StartIndex < blocks[j].StartIndex })
	return blocks
}

func applyAttributes(block *Block, attrs string) {
	for _, m := range attribute.FindAllStringSubmatch(attrs, -1) {
		switch strings.ToLower(m[1]) {
		case "identifier":
			block.Identifier = m[2]
		case "title":
			block.Title = m[2]
		case "type":
			block.ContentType = m[2]
		case "language":
			block.Language = m[2]
		}
	}
}

// FormatBlock renders a block as a Markdown callout.
func FormatBlock(block Block) string {
	quoted := quote(block.Content)
	if block.Kind == KindThinking {
		return "> [!info] Thinking\n" + quoted
	}

	title := block.Title
	if title == "" {
		title = "Artifact"
	}
	return "> [!example] " + title + "\n> ```\n" + quoted + "\n> ```"
}

func quote(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// ReplaceBlocks substitutes every block span with its callout. Spans are
// replaced back to front so earlier offsets stay valid.
func ReplaceBlocks(text string, blocks []Block) string {
	ordered := append([]Block(nil), blocks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartIndex > ordered[j].StartIndex })

	result := text
	for _, block := range ordered {
		if block.StartIndex < 0 || block.EndIndex > len(result) || block.StartIndex > block.EndIndex {
			continue
		}
		result = result[:block.StartIndex] + FormatBlock(block) + result[block.EndIndex:]
	}
	return result
}

// Artifacts returns only the artifact blocks.
func Artifacts(blocks []Block) []Block {
	var out []Block
	for _, block := range blocks {
		if block.Kind == KindArtifact {
			out = append(out, block)
		}
	}
	return out
}

// Fingerprint hashes the fields an artifact node renders.
func Fingerprint(block Block) uint64 {
	d := xxhash.New()
	for _, part := range []string{block.Identifier, block.Title, block.ContentType, block.Language, block.Content} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
