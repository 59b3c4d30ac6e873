package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, body string, seen func(*http.Request, []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		if seen != nil {
			seen(r, payload)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func drain(t *testing.T, stream Stream) (string, *ToolCallAccumulator, string) {
	t.Helper()
	defer stream.Close()

	var text strings.Builder
	acc := NewToolCallAccumulator(nil)
	finish := ""
	for stream.Next() {
		ev := stream.Event()
		text.WriteString(ev.TextDelta)
		acc.Apply(ev.ToolCallDeltas...)
		if ev.FinishReason != "" {
			finish = ev.FinishReason
		}
	}
	require.NoError(t, stream.Err())
	return text.String(), acc, finish
}

func openAIChunk(delta string, finish string) string {
	finishJSON := "null"
	if finish != "" {
		finishJSON = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`+"\n\n", delta, finishJSON)
}

func TestOpenAISourceStreamsTextAndToolCalls(t *testing.T) {
	body := openAIChunk(`{"role":"assistant","content":"Hel"}`, "") +
		openAIChunk(`{"content":"lo"}`, "") +
		openAIChunk(`{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"browse","arguments":"{\"url\":"}}]}`, "") +
		openAIChunk(`{"tool_calls":[{"index":0,"function":{"arguments":"\"https://go.dev\"}"}}]}`, "") +
		openAIChunk(`{}`, "tool_calls") +
		"data: [DONE]\n\n"

	var request map[string]interface{}
	srv := sseServer(t, body, func(r *http.Request, payload []byte) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.Unmarshal(payload, &request))
	})

	source, err := NewOpenAISource("sk-test", "gpt-4o", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	stream, err := source.Stream(context.Background(), &Request{
		Messages: []Message{SystemMessage("sys"), UserMessage("hi")},
		Tools: []ToolDefinition{{
			Name:        "browse",
			Description: strings.Repeat("d", 2000),
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	})
	require.NoError(t, err)

	text, acc, finish := drain(t, stream)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, FinishToolCalls, finish)

	calls := acc.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "browse", calls[0].Function.Name)
	assert.JSONEq(t, `{"url":"https://go.dev"}`, calls[0].Function.Arguments)

	assert.Equal(t, "gpt-4o", request["model"])
	assert.Equal(t, true, request["stream"])
	tools := request["tools"].([]interface{})
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Len(t, fn["description"], maxToolDescription)
}

func TestOpenAISourceRejectsEmptyRequest(t *testing.T) {
	source, err := NewOpenAISource("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", source.Name())

	_, err = source.Stream(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestOpenAISourceRequiresKey(t *testing.T) {
	_, err := NewOpenAISource("  ", "gpt-4o")
	assert.Error(t, err)
}

func anthropicEvent(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func TestAnthropicSourceTranslatesEvents(t *testing.T) {
	body := anthropicEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet-latest","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":1}}}`) +
		anthropicEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`) +
		anthropicEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Looking"}}`) +
		anthropicEvent("content_block_stop", `{"type":"content_block_stop","index":0}`) +
		anthropicEvent("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"web_search","input":{}}}`) +
		anthropicEvent("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`) +
		anthropicEvent("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"golang\"}"}}`) +
		anthropicEvent("content_block_stop", `{"type":"content_block_stop","index":1}`) +
		anthropicEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":12}}`) +
		anthropicEvent("message_stop", `{"type":"message_stop"}`)

	var request map[string]interface{}
	srv := sseServer(t, body, func(r *http.Request, payload []byte) {
		require.NoError(t, json.Unmarshal(payload, &request))
	})

	source, err := NewAnthropicSource("key", "", anthropicoption.WithBaseURL(srv.URL), anthropicoption.WithMaxRetries(0))
	require.NoError(t, err)

	stream, err := source.Stream(context.Background(), &Request{
		Messages: []Message{SystemMessage("one"), SystemMessage("two"), UserMessage("search go")},
	})
	require.NoError(t, err)

	text, acc, finish := drain(t, stream)
	assert.Equal(t, "Looking", text)
	assert.Equal(t, FinishToolCalls, finish)

	calls := acc.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].ID)
	assert.Equal(t, "web_search", calls[0].Function.Name)
	assert.JSONEq(t, `{"query":"golang"}`, calls[0].Function.Arguments)

	assert.EqualValues(t, defaultAnthropicMaxTokens, request["max_tokens"])
	assert.Len(t, request["system"], 2)
	assert.Len(t, request["messages"], 1)
}

func TestConvertMessagesToAnthropicGroupsToolResults(t *testing.T) {
	system, messages, err := convertMessagesToAnthropic([]Message{
		SystemMessage("sys"),
		UserMessage("find two things"),
		AssistantMessage("", ToolCall{ID: "a", Function: FunctionCall{Name: "f", Arguments: `{"x":1}`}},
			ToolCall{ID: "b", Function: FunctionCall{Name: "f", Arguments: ""}}),
		ToolMessage("one", "a"),
		ToolMessage("two", "b"),
	})
	require.NoError(t, err)
	assert.Len(t, system, 1)
	require.Len(t, messages, 3)
	assert.Len(t, messages[1].Content, 2)
	assert.Len(t, messages[2].Content, 2)
}

func TestConvertMessagesToAnthropicRejectsBadArguments(t *testing.T) {
	_, _, err := convertMessagesToAnthropic([]Message{
		AssistantMessage("", ToolCall{ID: "a", Function: FunctionCall{Name: "f", Arguments: "{"}}),
	})
	assert.Error(t, err)
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"tool_use":      FinishToolCalls,
		"end_turn":      FinishStop,
		"stop_sequence": FinishStop,
		"max_tokens":    FinishLength,
		"refusal":       FinishContentFilter,
	}
	for in, want := range tests {
		assert.Equal(t, want, mapAnthropicStopReason(in), in)
	}
}

func TestSplitDataURL(t *testing.T) {
	media, data, ok := splitDataURL("data:image/png;base64,QUJD")
	require.True(t, ok)
	assert.Equal(t, "image/png", media)
	assert.Equal(t, "QUJD", data)

	_, _, ok = splitDataURL("https://example.com/cat.png")
	assert.False(t, ok)
	_, _, ok = splitDataURL("data:text/plain,hello")
	assert.False(t, ok)
}

func TestGoogleFinishReason(t *testing.T) {
	s := &googleStream{}
	assert.Equal(t, "", s.mapFinishReason(""))
	assert.Equal(t, FinishStop, s.mapFinishReason("STOP"))
	assert.Equal(t, FinishLength, s.mapFinishReason("MAX_TOKENS"))
	assert.Equal(t, FinishContentFilter, s.mapFinishReason("SAFETY"))

	s.toolCount = 1
	assert.Equal(t, FinishToolCalls, s.mapFinishReason("STOP"))
}

func TestConvertMessagesToGenAI(t *testing.T) {
	system, contents, err := convertMessagesToGenAI([]Message{
		SystemMessage("a"),
		SystemMessage("b"),
		UserMessage("hi"),
		AssistantMessage("", ToolCall{ID: "c1", Function: FunctionCall{Name: "browse", Arguments: `{"url":"x"}`}}),
		ToolMessage("plain text", "c1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "a\n\nb", system)
	require.Len(t, contents, 3)

	response := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, response)
	assert.Equal(t, "browse", response.Name)
	assert.Equal(t, "c1", response.ID)
	assert.Equal(t, "plain text", response.Response["output"])
}

func TestNewSourceUnknownProvider(t *testing.T) {
	_, err := NewSource(context.Background(), "mystery", "", "key")
	assert.Error(t, err)
}
