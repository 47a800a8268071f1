// Package sessiontest provides a scripted session.Chat for tests.
package sessiontest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/minhyannv/gemini-agent-go/pkg/session"
)

// ErrScriptExhausted is returned when the chat receives more sends than scripted.
var ErrScriptExhausted = errors.New("sessiontest: no scripted response left")

// Step is one scripted reply. When Err is set it is returned instead of Response.
type Step struct {
	Response *session.Response
	Err      error
	// Deltas are written to the stream writer by SendMessageStream. When empty,
	// Response.Text is written as a single delta.
	Deltas []string
}

// Reply is a convenience constructor for a successful Step.
func Reply(resp session.Response) Step {
	return Step{Response: &resp}
}

// Fail is a convenience constructor for a failing Step.
func Fail(err error) Step {
	return Step{Err: err}
}

// Chat replays Steps in order and records every input it receives.
type Chat struct {
	mu       sync.Mutex
	steps    []Step
	inputs   []session.Input
	streamed []bool
}

// NewChat returns a Chat that answers with steps in order.
func NewChat(steps ...Step) *Chat {
	return &Chat{steps: steps}
}

// SendMessage implements session.Chat.
func (c *Chat) SendMessage(_ context.Context, in session.Input) (*session.Response, error) {
	step, err := c.next(in, false)
	if err != nil {
		return nil, err
	}
	return step.Response, step.Err
}

// SendMessageStream implements session.Chat.
func (c *Chat) SendMessageStream(_ context.Context, in session.Input, w io.Writer) (*session.Response, error) {
	step, err := c.next(in, true)
	if err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	deltas := step.Deltas
	if len(deltas) == 0 && step.Response != nil && step.Response.Text != "" {
		deltas = []string{step.Response.Text}
	}
	for _, d := range deltas {
		if _, err := io.WriteString(w, d); err != nil {
			return nil, err
		}
	}
	return step.Response, nil
}

func (c *Chat) next(in session.Input, streamed bool) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, in)
	c.streamed = append(c.streamed, streamed)
	if len(c.steps) == 0 {
		return Step{}, ErrScriptExhausted
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step, nil
}

// Inputs returns every input received so far.
func (c *Chat) Inputs() []session.Input {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.Input, len(c.inputs))
	copy(out, c.inputs)
	return out
}

// Streamed reports, per received input, whether it arrived via SendMessageStream.
func (c *Chat) Streamed() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bool, len(c.streamed))
	copy(out, c.streamed)
	return out
}

// Remaining returns how many scripted steps are left.
func (c *Chat) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// Backend starts the same Chat for every StartChat call and records the options.
type Backend struct {
	Chat    *Chat
	Err     error
	Options []session.Options
}

// StartChat implements session.Backend.
func (b *Backend) StartChat(_ context.Context, opts session.Options) (session.Chat, error) {
	b.Options = append(b.Options, opts)
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Chat, nil
}
