package session_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
	"github.com/minhyannv/gemini-agent-go/pkg/session"
	"github.com/minhyannv/gemini-agent-go/pkg/session/sessiontest"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

func TestStartPassesOptionsToBackend(t *testing.T) {
	chat := sessiontest.NewChat()
	backend := &sessiontest.Backend{Chat: chat}
	opts := session.Options{
		Model:             "gemini-2.0-flash",
		SystemInstruction: "be nice",
		Generation:        session.DefaultGenerationConfig(),
	}

	s, err := session.Start(context.Background(), backend, opts)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Len(t, backend.Options, 1)
	assert.Equal(t, opts, backend.Options[0])
	assert.NotEmpty(t, s.ID())
}

func TestStartErrors(t *testing.T) {
	_, err := session.Start(context.Background(), nil, session.Options{})
	require.Error(t, err)

	_, err = session.Start(context.Background(), &sessiontest.Backend{Err: errors.New("bad key")}, session.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestDefaultGenerationConfig(t *testing.T) {
	g := session.DefaultGenerationConfig()
	assert.Equal(t, float32(1), g.Temperature)
	assert.Equal(t, float32(0.95), g.TopP)
	assert.Equal(t, 64, g.TopK)
	assert.Equal(t, 8192, g.MaxOutputTokens)
	assert.Equal(t, "text/plain", g.ResponseMIMEType)
}

func TestSendMessagePreservesOrder(t *testing.T) {
	chat := sessiontest.NewChat(
		sessiontest.Reply(session.Response{Text: "one"}),
		sessiontest.Reply(session.Response{Text: "two"}),
	)
	s := session.New(chat)

	r1, err := s.SendMessage(context.Background(), session.TextInput("first"))
	require.NoError(t, err)
	r2, err := s.SendMessage(context.Background(), session.ResultsInput([]tools.Result{{Name: "add", Response: map[string]any{"additionResult": 5.0}}}))
	require.NoError(t, err)

	assert.Equal(t, "one", r1.Text)
	assert.Equal(t, "two", r2.Text)
	inputs := chat.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "first", inputs[0].Text)
	assert.Len(t, inputs[1].Results, 1)
	assert.Equal(t, 2, s.Turns())
}

func TestSendMessageRejectsInvalidInput(t *testing.T) {
	chat := sessiontest.NewChat()
	s := session.New(chat)

	_, err := s.SendMessage(context.Background(), session.TextInput("   "))
	require.Error(t, err)
	_, err = s.SendMessage(context.Background(), session.Input{Text: "hi", Results: []tools.Result{{Name: "add"}}})
	require.Error(t, err)
	assert.Empty(t, chat.Inputs())
}

func TestSendMessageWrapsTransportErrors(t *testing.T) {
	chat := sessiontest.NewChat(sessiontest.Fail(errors.New("connection reset")))
	s := session.New(chat)

	_, err := s.SendMessage(context.Background(), session.TextInput("hi"))
	require.Error(t, err)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonTransport))
	assert.Zero(t, s.Turns())
}

func TestSendMessageNilResponseIsMalformed(t *testing.T) {
	chat := sessiontest.NewChat(sessiontest.Step{})
	s := session.New(chat)

	_, err := s.SendMessage(context.Background(), session.TextInput("hi"))
	require.Error(t, err)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonMalformedResponse))
}

func TestSendMessageStreamWritesDeltas(t *testing.T) {
	chat := sessiontest.NewChat(sessiontest.Step{
		Response: &session.Response{Text: "Hello world"},
		Deltas:   []string{"Hello", " world"},
	})
	var buf bytes.Buffer
	s := session.New(chat)

	resp, err := s.SendMessageStream(context.Background(), session.TextInput("hi"), &buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", buf.String())
	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, []bool{true}, chat.Streamed())
}

type deadlineChat struct {
	sessiontest.Chat
	deadline time.Time
	ok       bool
}

func (d *deadlineChat) SendMessage(ctx context.Context, _ session.Input) (*session.Response, error) {
	d.deadline, d.ok = ctx.Deadline()
	return &session.Response{}, nil
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	chat := &deadlineChat{}
	s := session.New(chat, session.WithRequestTimeout(time.Minute))
	_, err := s.SendMessage(context.Background(), session.TextInput("hi"))
	require.NoError(t, err)
	assert.True(t, chat.ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), chat.deadline, 5*time.Second)

	chat = &deadlineChat{}
	s = session.New(chat)
	_, err = s.SendMessage(context.Background(), session.TextInput("hi"))
	require.NoError(t, err)
	assert.False(t, chat.ok)
}

func TestVerboseLoggingIncludesSessionID(t *testing.T) {
	var buf bytes.Buffer
	chat := sessiontest.NewChat(sessiontest.Reply(session.Response{Text: "ok"}))
	s := session.New(chat, session.WithLogger(loggerpkg.NewWriterLogger(&buf), true))

	_, err := s.SendMessage(context.Background(), session.TextInput("hi"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), s.ID())
	assert.Contains(t, buf.String(), "received")
}
