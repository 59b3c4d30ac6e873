// Package userinput turns a user node into the message sent to the model:
// the node text plus the images it embeds with ![[...]] references.
package userinput

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/disintegration/imaging"
)

var (
	// ErrNotUserInput is returned for nodes carrying a non-user message.
	ErrNotUserInput = errors.New("node is not a user input")
	// ErrEmptyInput is returned when the node has no text to send.
	ErrEmptyInput = errors.New("user input is empty")
)

// ImageSide is the edge length images are scaled to before they are sent.
const ImageSide = 400

var imageRefPattern = regexp.MustCompile(`!\[\[(.*?)]]`)

// ImageResolver loads an embedded image and returns it as a data URL.
type ImageResolver interface {
	ResolveImage(ctx context.Context, src string) (string, error)
}

// ImageReferences returns the distinct ![[...]] sources in text, in order
// of first appearance.
func ImageReferences(text string) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, match := range imageRefPattern.FindAllStringSubmatch(text, -1) {
		src := strings.TrimSpace(match[1])
		if src == "" {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		refs = append(refs, src)
	}
	return refs
}

// Resolve builds the user message for node. The text part comes first,
// followed by one image part per distinct reference. References the
// resolver cannot load are skipped. resolver may be nil, in which case
// only data URLs are kept.
func Resolve(ctx context.Context, node *canvas.Node, resolver ImageResolver) (*llm.Message, error) {
	var name string
	if msg := node.Data.Message; msg != nil {
		if msg.Role != "" && msg.Role != llm.RoleUser {
			return nil, ErrNotUserInput
		}
		name = msg.Name
	}
	if node.Data.Role != "" && node.Data.Role != llm.RoleUser {
		return nil, ErrNotUserInput
	}

	text := node.Text
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	msg := &llm.Message{
		Role:  llm.RoleUser,
		Name:  name,
		Parts: []llm.ContentPart{llm.TextPart(text)},
	}

	for _, src := range ImageReferences(text) {
		if strings.HasPrefix(src, "data:image") {
			msg.Parts = append(msg.Parts, llm.ImagePart(src))
			continue
		}
		if resolver == nil {
			continue
		}
		url, err := resolver.ResolveImage(ctx, src)
		if err != nil {
			logger.Warn("skipping image %q of node %s: %v", src, node.ID, err)
			continue
		}
		msg.Parts = append(msg.Parts, llm.ImagePart(url))
	}

	// Plain text input stays unstructured.
	if len(msg.Parts) == 1 {
		msg.Content = text
		msg.Parts = nil
	}
	return msg, nil
}

// EncodeImage decodes raw image bytes, scales them to ImageSide x ImageSide
// and returns a PNG data URL.
func EncodeImage(raw []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	resized := imaging.Resize(img, ImageSide, ImageSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
