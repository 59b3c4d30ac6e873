package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DrawResult is the text returned to the model after an image was drawn.
const DrawResult = "Image generated and shown to the user."

// ImageSaver persists generated images next to the canvas and returns the
// path under which the canvas can embed them.
type ImageSaver interface {
	SaveImage(prefix string, png []byte) (string, error)
}

// DrawTool generates images with the OpenAI images API and shows them on
// the canvas as an additional node.
type DrawTool struct {
	client openai.Client
	saver  ImageSaver
}

// NewDrawTool creates a draw tool. saver may be nil, in which case the
// image is embedded as a data URL.
func NewDrawTool(apiKey string, saver ImageSaver, opts ...option.RequestOption) (*DrawTool, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("draw tool requires an OpenAI API key")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &DrawTool{client: openai.NewClient(opts...), saver: saver}, nil
}

func (t *DrawTool) Name() string {
	return ToolNameDraw
}

func (t *DrawTool) Description() string {
	return "Draws an image based on the given prompt. The image is shown to the user and is visible to you as a user message."
}

func (t *DrawTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "The prompt to draw an image",
				"minLength":   1,
			},
			"size": map[string]interface{}{
				"type":        "string",
				"description": "Image size (default: 1024x1024)",
				"enum":        []string{"1024x1024", "1792x1024", "1024x1792"},
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *DrawTool) Execute(ctx context.Context, params map[string]interface{}, emit Emitter) (interface{}, error) {
	prompt := strings.TrimSpace(GetStringParam(params, "prompt", ""))
	if prompt == "" {
		return nil, fmt.Errorf("missing required parameter 'prompt'")
	}

	resp, err := t.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModelDallE3,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize(GetStringParam(params, "size", string(openai.ImageGenerateParamsSize1024x1024))),
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation returned no data")
	}

	emit(t.nodeSpec(prompt, resp.Data[0].B64JSON))
	return DrawResult, nil
}

func (t *DrawTool) nodeSpec(prompt, b64 string) AdditionalNodeSpec {
	dataURL := "data:image/png;base64," + b64
	content := fmt.Sprintf("![](%s)", dataURL)
	if t.saver != nil {
		if png, err := base64.StdEncoding.DecodeString(b64); err == nil {
			if path, err := t.saver.SaveImage("dall-e", png); err == nil {
				content = fmt.Sprintf("![[%s]][^1]\n\n[^1]: %s", path, prompt)
			}
		}
	}

	msg := llm.Message{
		Role: llm.RoleUser,
		Name: "DALL-E",
		Parts: []llm.ContentPart{
			llm.TextPart(prompt),
			llm.ImagePart(dataURL),
		},
	}
	return AdditionalNodeSpec{
		Content: content,
		Message: &msg,
		Size:    &canvas.Size{Width: consts.DrawNodeWidth, Height: consts.DrawNodeHeight},
	}
}
