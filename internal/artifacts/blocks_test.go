package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBlocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Block
	}{
		{
			name:  "thinking block",
			input: "Hi <antThinking> plan </antThinking> there",
			want: []Block{{
				Kind: KindThinking, Content: "plan", StartIndex: 3, EndIndex: 36,
			}},
		},
		{
			name:  "artifact with attributes",
			input: `<antArtifact identifier="page" type="text/html" title="Demo" language="html"><p>x</p></antArtifact>`,
			want: []Block{{
				Kind: KindArtifact, Identifier: "page", Title: "Demo", ContentType: "text/html", Language: "html",
				Content: "<p>x</p>", StartIndex: 0, EndIndex: 99,
			}},
		},
		{
			name:  "unterminated block runs to the end",
			input: `ok <antArtifact identifier="a">partial`,
			want: []Block{{
				Kind: KindArtifact, Identifier: "a", Content: "partial", StartIndex: 3, EndIndex: 38,
			}},
		},
		{
			name:  "artifact without identifier is dropped",
			input: `<antArtifact title="x">body</antArtifact>`,
			want:  nil,
		},
		{
			name:  "tag names are case-insensitive",
			input: `<ANTTHINKING>t</antthinking>`,
			want: []Block{{
				Kind: KindThinking, Content: "t", StartIndex: 0, EndIndex: 28,
			}},
		},
		{
			name:  "end tag must match the kind",
			input: `<antThinking>a</antArtifact>b`,
			want: []Block{{
				Kind: KindThinking, Content: "a</antArtifact>b", StartIndex: 0, EndIndex: 29,
			}},
		},
		{
			name:  "no blocks",
			input: "plain text",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBlocks(tt.input))
		})
	}
}

func TestExtractBlocksIsLeftToRight(t *testing.T) {
	input := `<antThinking>one</antThinking> mid <antArtifact identifier="b" title="B">two</antArtifact> end`
	blocks := ExtractBlocks(input)
	require.Len(t, blocks, 2)
	assert.Equal(t, KindThinking, blocks[0].Kind)
	assert.Equal(t, KindArtifact, blocks[1].Kind)
	assert.Less(t, blocks[0].EndIndex, blocks[1].StartIndex)
	assert.Len(t, Artifacts(blocks), 1)
}

func TestFormatBlock(t *testing.T) {
	assert.Equal(t, "> [!info] Thinking\n> line one\n> line two",
		FormatBlock(Block{Kind: KindThinking, Content: "line one\nline two"}))

	assert.Equal(t, "> [!example] Artifact\n> ```\n> <svg/>\n> ```",
		FormatBlock(Block{Kind: KindArtifact, Identifier: "x", Content: "<svg/>"}))

	assert.Equal(t, "> [!example] Chart\n> ```\n> a\n> b\n> ```",
		FormatBlock(Block{Kind: KindArtifact, Identifier: "x", Title: "Chart", Content: "a\nb"}))
}

func TestReplaceBlocksTwoBlocks(t *testing.T) {
	input := `Before <antThinking>why</antThinking> middle <antArtifact identifier="p" title="P">body</antArtifact> after`
	got := ReplaceBlocks(input, ExtractBlocks(input))

	assert.Equal(t,
		"Before > [!info] Thinking\n> why middle > [!example] P\n> ```\n> body\n> ``` after",
		got)
}

func TestReplaceBlocksKeepsOutsideText(t *testing.T) {
	assert.Equal(t, "no blocks here", ReplaceBlocks("no blocks here", nil))
}

func TestFingerprint(t *testing.T) {
	a := Block{Kind: KindArtifact, Identifier: "x", Content: "body"}
	b := a
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Content = "body!"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))

	// field boundaries matter
	c := Block{Identifier: "xb", Content: "ody"}
	d := Block{Identifier: "x", Content: "body"}
	assert.NotEqual(t, Fingerprint(c), Fingerprint(d))
}
