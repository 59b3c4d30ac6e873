package userinput

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]string

func (m mapResolver) ResolveImage(_ context.Context, src string) (string, error) {
	if url, ok := m[src]; ok {
		return url, nil
	}
	return "", errors.New("not found")
}

func userNode(text string) *canvas.Node {
	return &canvas.Node{ID: "n1", Text: text, Data: canvas.NodeData{Role: llm.RoleUser}}
}

func TestImageReferences(t *testing.T) {
	refs := ImageReferences("a ![[cat.png]] b ![[dog.png]] c ![[cat.png]] ![[ ]]")
	assert.Equal(t, []string{"cat.png", "dog.png"}, refs)
}

func TestResolvePlainText(t *testing.T) {
	msg, err := Resolve(context.Background(), userNode("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, llm.RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.IsStructured())
}

func TestResolveImages(t *testing.T) {
	text := "look ![[data:image/png;base64,AAA]] and ![[cat.png]] ![[missing.png]] ![[cat.png]]"
	node := userNode(text)
	node.Data.Message = &llm.Message{Role: llm.RoleUser, Name: "alice"}

	msg, err := Resolve(context.Background(), node, mapResolver{"cat.png": "data:image/png;base64,CAT"})
	require.NoError(t, err)

	require.Len(t, msg.Parts, 3)
	assert.Equal(t, llm.PartText, msg.Parts[0].Type)
	assert.Equal(t, text, msg.Parts[0].Text)
	assert.Equal(t, []string{"data:image/png;base64,AAA", "data:image/png;base64,CAT"}, msg.Images())
	assert.Equal(t, "alice", msg.Name)
}

func TestResolveRejects(t *testing.T) {
	_, err := Resolve(context.Background(), userNode("  \n"), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	node := userNode("hi")
	node.Data.Role = llm.RoleAssistant
	_, err = Resolve(context.Background(), node, nil)
	assert.ErrorIs(t, err, ErrNotUserInput)

	node = userNode("hi")
	node.Data.Role = ""
	node.Data.Message = &llm.Message{Role: llm.RoleSystem}
	_, err = Resolve(context.Background(), node, nil)
	assert.ErrorIs(t, err, ErrNotUserInput)
}

func TestEncodeImageScalesToSquare(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 10))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	url, err := EncodeImage(buf.Bytes())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, ImageSide, decoded.Bounds().Dx())
	assert.Equal(t, ImageSide, decoded.Bounds().Dy())
}

func TestEncodeImageRejectsGarbage(t *testing.T) {
	_, err := EncodeImage([]byte("not an image"))
	assert.Error(t, err)
}
