// Package session holds one long-lived conversation with a model backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

// GenerationConfig holds sampling parameters fixed for the session lifetime.
type GenerationConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMIMEType string
}

// DefaultGenerationConfig returns the parameters the agent runs with.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      1,
		TopP:             0.95,
		TopK:             64,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "text/plain",
	}
}

// Options configures a new chat on a backend.
type Options struct {
	Model             string
	SystemInstruction string
	Generation        GenerationConfig
	Tools             []tools.Declaration
}

// Input is one turn sent to the model: either user text or a batch of tool results.
type Input struct {
	Text    string
	Results []tools.Result
}

// TextInput wraps a user line.
func TextInput(text string) Input { return Input{Text: text} }

// ResultsInput wraps a batch of tool results.
func ResultsInput(results []tools.Result) Input { return Input{Results: results} }

func (in Input) validate() error {
	hasText := strings.TrimSpace(in.Text) != ""
	hasResults := len(in.Results) > 0
	switch {
	case hasText && hasResults:
		return errors.New("input carries both text and tool results")
	case !hasText && !hasResults:
		return errors.New("input is empty")
	}
	return nil
}

// Response is one model turn.
type Response struct {
	Text  string
	Calls []tools.Call
}

// Chat is a provider conversation. Implementations append every call to the
// same conversation in the order invoked.
type Chat interface {
	SendMessage(ctx context.Context, in Input) (*Response, error)
	// SendMessageStream writes text deltas to w as they arrive and returns the
	// accumulated response.
	SendMessageStream(ctx context.Context, in Input, w io.Writer) (*Response, error)
}

// Backend starts chats against a model provider.
type Backend interface {
	StartChat(ctx context.Context, opts Options) (Chat, error)
}

// Session is the handle the conversation loop holds. Sends are serialized so
// no two turns are ever in flight at once.
type Session struct {
	id      string
	chat    Chat
	timeout time.Duration
	logger  loggerpkg.Logger
	verbose bool

	mu    sync.Mutex
	turns int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
		s.verbose = verbose
	}
}

// WithRequestTimeout bounds each send. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// Start opens a chat on backend and wraps it in a Session.
func Start(ctx context.Context, backend Backend, opts Options, sopts ...Option) (*Session, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	chat, err := backend.StartChat(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("start chat: %w", err)
	}
	s := New(chat, sopts...)
	loggerpkg.Debug(s.verbose, s.logger, "session started", map[string]any{
		"session": s.id,
		"model":   opts.Model,
		"tools":   len(opts.Tools),
	})
	return s, nil
}

// New wraps an existing chat.
func New(chat Chat, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		chat:   chat,
		logger: loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = loggerpkg.With(s.logger, "session", s.id)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Turns returns how many sends completed successfully.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// SendMessage sends one turn and waits for the complete response.
func (s *Session) SendMessage(ctx context.Context, in Input) (*Response, error) {
	return s.send(ctx, in, func(ctx context.Context) (*Response, error) {
		return s.chat.SendMessage(ctx, in)
	})
}

// SendMessageStream sends one turn, streaming text deltas to w.
func (s *Session) SendMessageStream(ctx context.Context, in Input, w io.Writer) (*Response, error) {
	if w == nil {
		w = io.Discard
	}
	return s.send(ctx, in, func(ctx context.Context) (*Response, error) {
		return s.chat.SendMessageStream(ctx, in, w)
	})
}

func (s *Session) send(ctx context.Context, in Input, do func(context.Context) (*Response, error)) (*Response, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	loggerpkg.Debug(s.verbose, s.logger, "send", map[string]any{
		"turn":    s.turns + 1,
		"text":    len(in.Text),
		"results": len(in.Results),
	})
	resp, err := do(ctx)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTransport)
	}
	if resp == nil {
		return nil, errorsx.Wrap(errors.New("empty response from model"), errorsx.ReasonMalformedResponse)
	}
	s.turns++
	loggerpkg.Debug(s.verbose, s.logger, "received", map[string]any{
		"turn":  s.turns,
		"text":  len(resp.Text),
		"calls": len(resp.Calls),
	})
	return resp, nil
}
