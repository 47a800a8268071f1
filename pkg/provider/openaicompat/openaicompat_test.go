package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	"github.com/minhyannv/gemini-agent-go/pkg/session"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

// fakeServer answers chat completion requests with canned bodies and records requests.
type fakeServer struct {
	mu       sync.Mutex
	requests []map[string]any
	replies  []func(w http.ResponseWriter)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	var reply func(http.ResponseWriter)
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if !strings.HasSuffix(r.URL.Path, "/chat/completions") || reply == nil {
		http.Error(w, `{"error":{"message":"unexpected request"}}`, http.StatusBadRequest)
		return
	}
	reply(w)
}

func jsonReply(message string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":%s}]}`, message)
	}
}

func sseReply(chunks ...string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}
}

func errorReply(status int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"server exploded"}}`)
	}
}

func startChat(t *testing.T, replies ...func(http.ResponseWriter)) (session.Chat, *fakeServer) {
	t.Helper()
	fake := &fakeServer{replies: replies}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	reg, err := tools.New(tools.Context{})
	require.NoError(t, err)

	client := NewClient("test-key", srv.URL+"/")
	chat, err := client.StartChat(context.Background(), session.Options{
		Model:             "gemini-2.0-flash",
		SystemInstruction: "You are helpful.",
		Generation:        session.DefaultGenerationConfig(),
		Tools:             reg.Declarations(),
	})
	require.NoError(t, err)
	return chat, fake
}

func messagesOf(t *testing.T, req map[string]any) []map[string]any {
	t.Helper()
	raw, ok := req["messages"].([]any)
	require.True(t, ok)
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]any))
	}
	return out
}

func TestToolParams(t *testing.T) {
	reg, err := tools.New(tools.Context{})
	require.NoError(t, err)

	params, err := ToolParams(reg.Declarations())
	require.NoError(t, err)
	require.Len(t, params, 4)

	byName := map[string]map[string]any{}
	for _, p := range params {
		byName[p.Function.Name] = p.Function.Parameters
	}
	add := byName["add"]
	assert.Equal(t, "object", add["type"])
	assert.ElementsMatch(t, []any{"a", "b"}, add["required"])
	props := add["properties"].(map[string]any)
	assert.Equal(t, "number", props["a"].(map[string]any)["type"])

	dt := byName["getDateAndTime"]
	assert.Equal(t, "object", dt["type"])
	assert.Equal(t, map[string]any{}, dt["properties"])
}

func TestSendMessageToolRoundTrip(t *testing.T) {
	chat, fake := startChat(t,
		jsonReply(`{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":2,\"b\":3}"}}]}`),
		jsonReply(`{"role":"assistant","content":"2 + 3 = 5"}`),
	)

	resp, err := chat.SendMessage(context.Background(), session.TextInput("What is 2 + 3?"))
	require.NoError(t, err)
	require.Len(t, resp.Calls, 1)
	assert.Equal(t, tools.Call{ID: "call_1", Name: "add", Args: map[string]any{"a": 2.0, "b": 3.0}}, resp.Calls[0])

	resp, err = chat.SendMessage(context.Background(), session.ResultsInput([]tools.Result{
		{ID: "call_1", Name: "add", Response: map[string]any{"additionResult": 5.0}},
	}))
	require.NoError(t, err)
	assert.Equal(t, "2 + 3 = 5", resp.Text)
	assert.Empty(t, resp.Calls)

	require.Len(t, fake.requests, 2)
	first := fake.requests[0]
	assert.Equal(t, "gemini-2.0-flash", first["model"])
	assert.Equal(t, 1.0, first["temperature"])
	assert.InDelta(t, 0.95, first["top_p"], 1e-6)
	assert.Equal(t, 8192.0, first["max_tokens"])
	assert.Len(t, first["tools"], 4)

	msgs := messagesOf(t, fake.requests[1])
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0]["role"])
	assert.Equal(t, "user", msgs[1]["role"])
	assert.Equal(t, "assistant", msgs[2]["role"])
	assert.Equal(t, "tool", msgs[3]["role"])
	assert.Equal(t, "call_1", msgs[3]["tool_call_id"])
	assert.JSONEq(t, `{"additionResult":5}`, msgs[3]["content"].(string))
}

func TestSendMessageFailureRollsBackInput(t *testing.T) {
	chat, fake := startChat(t,
		errorReply(http.StatusInternalServerError),
		jsonReply(`{"role":"assistant","content":"hello"}`),
	)

	_, err := chat.SendMessage(context.Background(), session.TextInput("first"))
	require.Error(t, err)

	resp, err := chat.SendMessage(context.Background(), session.TextInput("second"))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)

	require.Len(t, fake.requests, 2)
	msgs := messagesOf(t, fake.requests[1])
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[1]["content"])
}

func TestSendMessageMalformedArguments(t *testing.T) {
	chat, _ := startChat(t,
		jsonReply(`{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"add","arguments":"{not json"}}]}`),
	)
	_, err := chat.SendMessage(context.Background(), session.TextInput("hi"))
	require.Error(t, err)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonMalformedResponse))
}

func TestSendMessageStream(t *testing.T) {
	chat, fake := startChat(t, sseReply(
		`{"id":"c1","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{"content":"lo!"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	))

	var buf bytes.Buffer
	resp, err := chat.SendMessageStream(context.Background(), session.TextInput("hi"), &buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", buf.String())
	assert.Equal(t, "Hello!", resp.Text)
	assert.Empty(t, resp.Calls)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, true, fake.requests[0]["stream"])
}

func TestUserTurnAnswersAbandonedToolCalls(t *testing.T) {
	chat, fake := startChat(t,
		jsonReply(`{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"callSearchAgent","arguments":"{\"prompt\":\"x\"}"}},{"id":"call_2","type":"function","function":{"name":"add","arguments":"{\"a\":1,\"b\":2}"}}]}`),
		jsonReply(`{"role":"assistant","content":"ok"}`),
	)

	resp, err := chat.SendMessage(context.Background(), session.TextInput("search"))
	require.NoError(t, err)
	require.Len(t, resp.Calls, 2)

	// The tool batch failed, so the next turn is a fresh user line.
	_, err = chat.SendMessage(context.Background(), session.TextInput("try again"))
	require.NoError(t, err)

	msgs := messagesOf(t, fake.requests[1])
	require.Len(t, msgs, 6)
	assert.Equal(t, "assistant", msgs[2]["role"])
	for i, id := range []string{"call_1", "call_2"} {
		m := msgs[3+i]
		assert.Equal(t, "tool", m["role"])
		assert.Equal(t, id, m["tool_call_id"])
		assert.JSONEq(t, unansweredResult, m["content"].(string))
	}
	assert.Equal(t, "user", msgs[5]["role"])
	assert.Equal(t, "try again", msgs[5]["content"])
}

func TestAnsweredToolCallsAreNotRepeated(t *testing.T) {
	chat, fake := startChat(t,
		jsonReply(`{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":1,\"b\":2}"}}]}`),
		jsonReply(`{"role":"assistant","content":"3"}`),
		jsonReply(`{"role":"assistant","content":"bye"}`),
	)
	ctx := context.Background()

	_, err := chat.SendMessage(ctx, session.TextInput("1+2"))
	require.NoError(t, err)
	_, err = chat.SendMessage(ctx, session.ResultsInput([]tools.Result{{ID: "call_1", Name: "add", Response: map[string]any{"additionResult": 3.0}}}))
	require.NoError(t, err)
	_, err = chat.SendMessage(ctx, session.TextInput("thanks"))
	require.NoError(t, err)

	msgs := messagesOf(t, fake.requests[2])
	require.Len(t, msgs, 6)
	assert.Equal(t, []any{"system", "user", "assistant", "tool", "assistant", "user"}, []any{
		msgs[0]["role"], msgs[1]["role"], msgs[2]["role"], msgs[3]["role"], msgs[4]["role"], msgs[5]["role"],
	})
}
