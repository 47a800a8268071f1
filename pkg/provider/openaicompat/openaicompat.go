// Package openaicompat implements the session backend on an OpenAI-compatible
// chat completions endpoint, such as Gemini's.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
	"github.com/minhyannv/gemini-agent-go/pkg/session"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

// Client starts chats on an OpenAI-compatible endpoint.
type Client struct {
	client  openai.Client
	logger  loggerpkg.Logger
	verbose bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
		c.verbose = verbose
	}
}

// NewClient builds a client for baseURL. Requests are never retried.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	c := &Client{
		client: openai.NewClient(reqOpts...),
		logger: loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// StartChat implements session.Backend. The endpoint is stateless, so the
// chat keeps the message list itself.
func (c *Client) StartChat(_ context.Context, opts session.Options) (session.Chat, error) {
	toolParams, err := ToolParams(opts.Tools)
	if err != nil {
		return nil, err
	}
	ch := &chat{
		client: c,
		opts:   opts,
		tools:  toolParams,
	}
	if strings.TrimSpace(opts.SystemInstruction) != "" {
		ch.messages = append(ch.messages, openai.SystemMessage(opts.SystemInstruction))
	}
	return ch, nil
}

func (c *Client) debugf(format string, args ...any) {
	loggerpkg.Debugf(c.verbose, c.logger, format, args...)
}

// ToolParams converts tool declarations to chat completion tool definitions.
func ToolParams(decls []tools.Declaration) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(decls))
	for _, d := range decls {
		params := openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
		if d.Parameters != nil {
			payload, err := json.Marshal(d.Parameters)
			if err != nil {
				return nil, fmt.Errorf("encode schema for %s: %w", d.Name, err)
			}
			params = openai.FunctionParameters{}
			if err := json.Unmarshal(payload, &params); err != nil {
				return nil, fmt.Errorf("decode schema for %s: %w", d.Name, err)
			}
			if _, ok := params["properties"]; !ok {
				params["properties"] = map[string]any{}
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

type chat struct {
	client   *Client
	opts     session.Options
	tools    []openai.ChatCompletionToolParam
	messages []openai.ChatCompletionMessageParamUnion
}

func (c *chat) params() openai.ChatCompletionNewParams {
	g := c.opts.Generation
	p := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.opts.Model),
		Messages:    c.messages,
		Tools:       c.tools,
		Temperature: openai.Float(float64(g.Temperature)),
		TopP:        openai.Float(float64(g.TopP)),
	}
	if g.MaxOutputTokens > 0 {
		p.MaxTokens = openai.Int(int64(g.MaxOutputTokens))
	}
	if g.ResponseMIMEType == "text/plain" {
		p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfText: &shared.ResponseFormatTextParam{},
		}
	}
	return p
}

// unansweredResult is sent for tool calls whose batch failed before results
// were produced. The endpoint rejects a history with unanswered tool calls.
const unansweredResult = `{"error":"tool call was not completed"}`

func (c *chat) appendInput(in session.Input) error {
	if len(in.Results) == 0 {
		for _, id := range c.unansweredCalls() {
			c.messages = append(c.messages, openai.ToolMessage(unansweredResult, id))
		}
		c.messages = append(c.messages, openai.UserMessage(in.Text))
		return nil
	}
	for _, r := range in.Results {
		payload, err := json.Marshal(r.Response)
		if err != nil {
			return fmt.Errorf("encode result for %s: %w", r.Name, err)
		}
		c.messages = append(c.messages, openai.ToolMessage(string(payload), r.ID))
	}
	return nil
}

// unansweredCalls returns the tool call IDs of the latest assistant turn that
// have no tool message after it.
func (c *chat) unansweredCalls() []string {
	answered := map[string]bool{}
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		switch {
		case m.OfTool != nil:
			answered[m.OfTool.ToolCallID] = true
		case m.OfAssistant != nil:
			var ids []string
			for _, call := range m.OfAssistant.ToolCalls {
				if !answered[call.ID] {
					ids = append(ids, call.ID)
				}
			}
			return ids
		default:
			return nil
		}
	}
	return nil
}

// SendMessage sends one turn and waits for the full completion.
func (c *chat) SendMessage(ctx context.Context, in session.Input) (*session.Response, error) {
	previousLen := len(c.messages)
	if err := c.appendInput(in); err != nil {
		return nil, err
	}

	c.client.debugf("[verbose] chat: sending non-streaming request with %d messages", len(c.messages))
	completion, err := c.client.client.Chat.Completions.New(ctx, c.params())
	if err != nil {
		c.messages = c.messages[:previousLen]
		return nil, err
	}
	if len(completion.Choices) == 0 {
		c.messages = c.messages[:previousLen]
		return nil, errorsx.Wrap(errors.New("empty completion choices"), errorsx.ReasonMalformedResponse)
	}
	return c.record(completion.Choices[0].Message, previousLen)
}

// SendMessageStream sends one turn and writes content deltas to w.
func (c *chat) SendMessageStream(ctx context.Context, in session.Input, w io.Writer) (*session.Response, error) {
	previousLen := len(c.messages)
	if err := c.appendInput(in); err != nil {
		return nil, err
	}

	c.client.debugf("[verbose] chat: sending streaming request with %d messages", len(c.messages))
	stream := c.client.client.Chat.Completions.NewStreaming(ctx, c.params())
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		if !acc.AddChunk(chunk) {
			c.messages = c.messages[:previousLen]
			return nil, errorsx.Wrap(errors.New("failed to accumulate stream"), errorsx.ReasonMalformedResponse)
		}
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if _, err := io.WriteString(w, delta); err != nil {
					c.messages = c.messages[:previousLen]
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		c.messages = c.messages[:previousLen]
		return nil, err
	}
	if len(acc.Choices) == 0 {
		c.messages = c.messages[:previousLen]
		return nil, errorsx.Wrap(errors.New("empty streamed completion choices"), errorsx.ReasonMalformedResponse)
	}
	return c.record(acc.Choices[0].Message, previousLen)
}

// record appends the assistant turn and converts it to a session response.
// On failure the history is truncated back to previousLen.
func (c *chat) record(message openai.ChatCompletionMessage, previousLen int) (*session.Response, error) {
	resp := &session.Response{Text: message.Content}
	for _, call := range message.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				c.messages = c.messages[:previousLen]
				return nil, errorsx.Wrap(fmt.Errorf("decode arguments for %s: %w", call.Function.Name, err), errorsx.ReasonMalformedResponse)
			}
		}
		resp.Calls = append(resp.Calls, tools.Call{ID: call.ID, Name: call.Function.Name, Args: args})
	}
	c.messages = append(c.messages, message.ToParam())
	c.client.debugf("[verbose] chat: assistant returned %d bytes and %d tool call(s)", len(resp.Text), len(resp.Calls))
	return resp, nil
}
