package canvasfile

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/fs"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
	"nodes": [
		{"id": "u1", "type": "text", "text": "hello", "x": 0, "y": 0, "width": 400, "height": 60,
		 "role": "user", "message": {"role": "user", "content": "hello"}, "styleAttributes": {}},
		{"id": "a1", "type": "text", "text": "hi", "x": 0, "y": 110, "width": 800, "height": 60, "color": "5",
		 "role": "assistant", "finishReason": "stop", "message": {"role": "assistant", "content": "hi"}},
		{"id": "g1", "type": "group", "label": "Chats", "x": -50, "y": -50, "width": 1000, "height": 400}
	],
	"edges": [
		{"id": "e1", "fromNode": "u1", "fromSide": "bottom", "toNode": "a1", "toSide": "top", "toEnd": "arrow"}
	]
}`

func load(t *testing.T) (*Document, *fs.MockFS) {
	t.Helper()
	m := fs.NewMockFS()
	require.NoError(t, m.WriteFile(context.Background(), "chats/talk.canvas", []byte(sample)))
	doc, err := Load(context.Background(), m, "chats/talk.canvas")
	require.NoError(t, err)
	return doc, m
}

func TestLoadPopulatesStore(t *testing.T) {
	doc, _ := load(t)
	store := doc.Store()

	require.Len(t, store.Nodes(), 3)
	a1, ok := store.Node("a1")
	require.True(t, ok)
	assert.Equal(t, "hi", a1.Text)
	assert.Equal(t, "5", a1.Color)
	assert.Equal(t, llm.RoleAssistant, a1.Data.Role)
	assert.Equal(t, llm.FinishStop, a1.Data.FinishReason)
	require.NotNil(t, a1.Data.Message)
	assert.Equal(t, "hi", a1.Data.Message.Content)

	edge, ok := store.IncomingEdge("a1")
	require.True(t, ok)
	assert.Equal(t, "u1", edge.FromNode)
	assert.Equal(t, canvas.SideTop, edge.ToSide)
}

func TestSaveKeepsUnknownKeys(t *testing.T) {
	doc, m := load(t)
	store := doc.Store()

	require.NoError(t, store.SetNodeText("a1", "hi there"))
	store.RequestSave()

	data, err := m.ReadFile(context.Background(), "chats/talk.canvas")
	require.NoError(t, err)

	var out struct {
		Nodes []map[string]interface{} `json:"nodes"`
		Edges []map[string]interface{} `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Nodes, 3)
	require.Len(t, out.Edges, 1)

	assert.Contains(t, out.Nodes[0], "styleAttributes")
	assert.Equal(t, "hi there", out.Nodes[1]["text"])
	assert.Equal(t, "assistant", out.Nodes[1]["role"])
	assert.Equal(t, "group", out.Nodes[2]["type"])
	assert.Equal(t, "Chats", out.Nodes[2]["label"])
	assert.NotContains(t, out.Nodes[2], "text")
	assert.Equal(t, "arrow", out.Edges[0]["toEnd"])
	assert.True(t, strings.HasPrefix(string(data), "{\n\t"))
}

func TestNewNodesAreTextNodes(t *testing.T) {
	doc, _ := load(t)
	store := doc.Store()
	_, err := store.CreateNode(canvas.NodeSpec{ID: "n1", Text: "new", X: 10.4, Y: 20.6, Width: 400, Height: 60})
	require.NoError(t, err)

	data, err := doc.Encode(store.Snapshot())
	require.NoError(t, err)

	reloaded := New(fs.NewMockFS(), "x.canvas")
	require.NoError(t, reloaded.decode(data))
	n, ok := reloaded.Store().Node("n1")
	require.True(t, ok)
	assert.Equal(t, "new", n.Text)
	assert.Equal(t, 10.0, n.X)
	assert.Equal(t, 21.0, n.Y)
	assert.Equal(t, NodeTypeText, reloaded.nodeTypes["n1"])
}

func TestLoadErrors(t *testing.T) {
	m := fs.NewMockFS()
	ctx := context.Background()

	_, err := Load(ctx, m, "missing.canvas")
	assert.Error(t, err)

	require.NoError(t, m.WriteFile(ctx, "bad.canvas", []byte(`{"nodes": [{"type": "text"}]}`)))
	_, err = Load(ctx, m, "bad.canvas")
	assert.ErrorContains(t, err, "missing id")

	require.NoError(t, m.WriteFile(ctx, "empty.canvas", []byte(`{}`)))
	doc, err := Load(ctx, m, "empty.canvas")
	require.NoError(t, err)
	assert.Empty(t, doc.Store().Nodes())
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImagesResolve(t *testing.T) {
	m := fs.NewMockFS()
	ctx := context.Background()
	require.NoError(t, m.WriteFile(ctx, "chats/cat.png", pngBytes(t)))
	require.NoError(t, m.WriteFile(ctx, "assets/dog.png", pngBytes(t)))
	im := NewImages(m, "chats/talk.canvas")

	url, err := im.ResolveImage(ctx, "cat.png|300")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	url, err = im.ResolveImage(ctx, "assets/dog.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	url, err = im.ResolveImage(ctx, "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", url)

	_, err = im.ResolveImage(ctx, "nope.png")
	assert.Error(t, err)
}

func TestImagesSave(t *testing.T) {
	m := fs.NewMockFS()
	im := NewImages(m, "talk.canvas")
	im.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	p, err := im.SaveImage("dall e!", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "generated-images/dall-e_20240102-030405.000.png", p)
	assert.Equal(t, []string{p}, m.Files())
}
