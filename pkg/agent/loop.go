// Package agent runs the interactive conversation loop: read a line, send it,
// answer tool calls until the model stops asking, repeat.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
	"github.com/minhyannv/gemini-agent-go/pkg/session"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

// ExitCommand ends the session when typed on its own, ignoring case.
const ExitCommand = ".exit"

const (
	promptFirst = "\n\n> "
	promptEmpty = "> "
	promptNext  = "\n> "
	promptRetry = "\nSomething went wrong, try asking again\n\n> "
)

const maxLineBytes = 1024 * 1024

// Conversation is the chat the loop talks to. *session.Session implements it.
type Conversation interface {
	SendMessage(ctx context.Context, in session.Input) (*session.Response, error)
	SendMessageStream(ctx context.Context, in session.Input, w io.Writer) (*session.Response, error)
}

// Executor runs one tool call. *tools.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// Loop holds agent runtime state.
type Loop struct {
	conv  Conversation
	exec  Executor
	opts  Options
	deps  loopDeps
	cycle int
}

// New builds a Loop over conv that answers tool calls with exec.
func New(conv Conversation, exec Executor, opts Options, lopts ...LoopOption) (*Loop, error) {
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	if exec == nil {
		return nil, errors.New("tool executor is required")
	}
	if opts.MaxToolRounds < 0 {
		opts.MaxToolRounds = 0
	}
	deps := loopDeps{logger: loggerpkg.NopLogger{}}
	for _, opt := range lopts {
		if opt != nil {
			opt(&deps)
		}
	}
	return &Loop{conv: conv, exec: exec, opts: opts, deps: deps}, nil
}

// Run reads lines from in until EOF, the exit command, or ctx is done.
// Model text goes to out; cycle errors go to errOut and the loop continues.
func (l *Loop) Run(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	if in == nil {
		return errors.New("input reader is required")
	}
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	l.debugf("[verbose] loop start: stream=%v max_tool_rounds=%d", l.opts.Stream, l.opts.MaxToolRounds)

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(in, done)

	_, _ = fmt.Fprint(out, l.opts.Welcome, promptFirst)
	for {
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			l.debugf("[verbose] loop stop: %v", ctx.Err())
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if err := <-readErr; err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if strings.TrimSpace(line) == "" {
			_, _ = fmt.Fprint(out, promptEmpty)
			continue
		}
		if strings.EqualFold(line, ExitCommand) {
			l.debugf("[verbose] loop stop: exit command")
			return nil
		}

		if err := l.ProcessCycle(ctx, line, out); err != nil {
			fields := errorsx.Fields(err)
			fields["cycle"] = l.cycle
			loggerpkg.Warn(l.deps.logger, "cycle failed", fields)
			_, _ = fmt.Fprintln(errOut, err)
			_, _ = fmt.Fprint(out, promptRetry)
			continue
		}
		_, _ = fmt.Fprint(out, promptNext)
	}
}

// readLines scans in on its own goroutine so a blocked read never holds up
// cancellation. The goroutine exits at EOF, on a read error, or once done is
// closed and the pending read returns.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}

// ProcessCycle sends one user line and answers tool calls until the model
// replies without any. Every response text is written to out as it arrives.
func (l *Loop) ProcessCycle(ctx context.Context, input string, out io.Writer) error {
	l.cycle++
	l.debugf("[verbose] cycle %d: user input %d bytes", l.cycle, len(input))

	resp, err := l.sendUser(ctx, input, out)
	if err != nil {
		return err
	}

	for rounds := 0; len(resp.Calls) > 0; rounds++ {
		if l.opts.MaxToolRounds > 0 && rounds >= l.opts.MaxToolRounds {
			return errorsx.Wrap(
				fmt.Errorf("model still requested tools after %d rounds", l.opts.MaxToolRounds),
				errorsx.ReasonToolRounds,
			)
		}
		l.debugf("[verbose] cycle %d: round %d with %d tool call(s)", l.cycle, rounds+1, len(resp.Calls))

		results, err := l.ExecuteBatch(ctx, resp.Calls)
		if err != nil {
			return err
		}
		resp, err = l.conv.SendMessage(ctx, session.ResultsInput(results))
		if err != nil {
			return err
		}
		_, _ = io.WriteString(out, resp.Text)
	}
	return nil
}

func (l *Loop) sendUser(ctx context.Context, input string, out io.Writer) (*session.Response, error) {
	if l.opts.Stream {
		return l.conv.SendMessageStream(ctx, session.TextInput(input), out)
	}
	resp, err := l.conv.SendMessage(ctx, session.TextInput(input))
	if err != nil {
		return nil, err
	}
	_, _ = io.WriteString(out, resp.Text)
	return resp, nil
}

// ExecuteBatch runs every call concurrently and waits for all of them.
// Results keep the order of calls. Client errors become error results for the
// model; any other failure fails the batch.
func (l *Loop) ExecuteBatch(ctx context.Context, calls []tools.Call) ([]tools.Result, error) {
	results := make([]tools.Result, len(calls))
	p := pool.New().WithErrors().WithContext(ctx)
	if l.opts.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(l.opts.MaxConcurrency)
	}
	for i, call := range calls {
		p.Go(func(ctx context.Context) error {
			res, err := l.exec.Execute(ctx, call)
			if err != nil {
				if tools.IsClientError(err) {
					l.debugf("[verbose] %s: answered with error result: %v", call.Name, err)
					results[i] = tools.ErrorResult(call, err)
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (l *Loop) debugf(format string, args ...any) {
	loggerpkg.Debugf(l.deps.verbose, l.deps.logger, format, args...)
}
