// Package gemini implements the session backend and the search agent on the
// native Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
	"github.com/minhyannv/gemini-agent-go/pkg/session"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

// contentGenerator is the subset of *genai.Models the search agent uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// chatSender is the subset of *genai.Chat a session uses.
type chatSender interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	SendMessageStream(ctx context.Context, parts ...genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client owns one genai client and is shared by the conversation and the
// search tool.
type Client struct {
	client      *genai.Client
	models      contentGenerator
	searchModel string
	logger      loggerpkg.Logger
	verbose     bool
}

// Option configures a Client.
type Option func(*Client)

// WithSearchModel sets the model used by Search.
func WithSearchModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.searchModel = model
		}
	}
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
		c.verbose = verbose
	}
}

// NewClient creates a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c := &Client{
		client:      gc,
		models:      gc.Models,
		searchModel: "gemini-2.0-flash",
		logger:      loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// StartChat implements session.Backend.
func (c *Client) StartChat(ctx context.Context, opts session.Options) (session.Chat, error) {
	chat, err := c.client.Chats.Create(ctx, opts.Model, GenerateConfig(opts), nil)
	if err != nil {
		return nil, err
	}
	loggerpkg.Debug(c.verbose, c.logger, "gemini chat created", map[string]any{
		"model": opts.Model,
		"tools": len(opts.Tools),
	})
	return newChat(chat), nil
}

// Search implements tools.Searcher with a one-shot request that may only use
// Google Search.
func (c *Client) Search(ctx context.Context, prompt string) (string, error) {
	loggerpkg.Debug(c.verbose, c.logger, "search agent request", map[string]any{
		"model":  c.searchModel,
		"prompt": prompt,
	})
	resp, err := c.models.GenerateContent(ctx, c.searchModel, genai.Text(prompt), SearchConfig())
	if err != nil {
		return "", fmt.Errorf("search agent: %w", err)
	}
	return responseText(resp), nil
}

// SearchConfig is the request configuration for the search agent.
func SearchConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
	}
}

// GenerateConfig maps session options onto a genai request configuration.
func GenerateConfig(opts session.Options) *genai.GenerateContentConfig {
	g := opts.Generation
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.Temperature),
		TopP:             genai.Ptr(g.TopP),
		TopK:             genai.Ptr(float32(g.TopK)),
		MaxOutputTokens:  int32(g.MaxOutputTokens),
		ResponseMIMEType: g.ResponseMIMEType,
	}
	if strings.TrimSpace(opts.SystemInstruction) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser)
	}
	if decls := FunctionDeclarations(opts.Tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// chat adapts a genai chat to session.Chat.
type chat struct {
	sender chatSender
	// synthetic holds call IDs generated locally because the API sent none;
	// they are not echoed back in function responses.
	synthetic map[string]bool
}

func newChat(sender chatSender) *chat {
	return &chat{sender: sender, synthetic: make(map[string]bool)}
}

func (c *chat) SendMessage(ctx context.Context, in session.Input) (*session.Response, error) {
	resp, err := c.sender.SendMessage(ctx, c.parts(in)...)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errorsx.Wrap(errors.New("gemini returned no response"), errorsx.ReasonMalformedResponse)
	}
	return &session.Response{Text: responseText(resp), Calls: c.calls(resp)}, nil
}

func (c *chat) SendMessageStream(ctx context.Context, in session.Input, w io.Writer) (*session.Response, error) {
	var (
		sb    strings.Builder
		calls []tools.Call
	)
	for resp, err := range c.sender.SendMessageStream(ctx, c.parts(in)...) {
		if err != nil {
			return nil, err
		}
		if text := responseText(resp); text != "" {
			sb.WriteString(text)
			if _, err := io.WriteString(w, text); err != nil {
				return nil, err
			}
		}
		calls = append(calls, c.calls(resp)...)
	}
	return &session.Response{Text: sb.String(), Calls: calls}, nil
}

func (c *chat) parts(in session.Input) []genai.Part {
	if len(in.Results) == 0 {
		return []genai.Part{{Text: in.Text}}
	}
	parts := make([]genai.Part, 0, len(in.Results))
	for _, r := range in.Results {
		fr := &genai.FunctionResponse{Name: r.Name, Response: r.Response}
		if !c.synthetic[r.ID] {
			fr.ID = r.ID
		}
		parts = append(parts, genai.Part{FunctionResponse: fr})
	}
	return parts
}

func (c *chat) calls(resp *genai.GenerateContentResponse) []tools.Call {
	var calls []tools.Call
	for _, part := range firstCandidateParts(resp) {
		if part == nil || part.FunctionCall == nil {
			continue
		}
		fc := part.FunctionCall
		id := fc.ID
		if id == "" {
			id = uuid.NewString()
			c.synthetic[id] = true
		}
		calls = append(calls, tools.Call{ID: id, Name: fc.Name, Args: fc.Args})
	}
	return calls
}

func firstCandidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil
	}
	return content.Parts
}

// responseText concatenates the text parts of the first candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, part := range firstCandidateParts(resp) {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
