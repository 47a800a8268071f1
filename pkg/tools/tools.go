package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
)

// Searcher answers a free-text query using a web-search capable model.
type Searcher interface {
	Search(ctx context.Context, prompt string) (string, error)
}

// Declaration describes one tool to the model.
type Declaration struct {
	Kind        Kind
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Call is a tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is the response to a Call, paired by ID and Name.
type Result struct {
	ID       string
	Name     string
	Response map[string]any
}

// Context carries the dependencies shared by all tools.
type Context struct {
	Verbose  bool
	Logger   loggerpkg.Logger
	Searcher Searcher
	Now      func() time.Time
}

func (c Context) debugf(format string, args ...any) {
	loggerpkg.Debugf(c.Verbose, c.Logger, format, args...)
}

// Registry holds the tool declarations and executes calls against them.
type Registry struct {
	ctx      Context
	decls    []Declaration
	resolved map[Kind]*jsonschema.Resolved
}

// New builds a registry with the built-in tools.
func New(ctx Context) (*Registry, error) {
	if ctx.Logger == nil {
		ctx.Logger = loggerpkg.NopLogger{}
	}
	if ctx.Now == nil {
		ctx.Now = time.Now
	}
	r := &Registry{
		ctx:      ctx,
		resolved: make(map[Kind]*jsonschema.Resolved),
	}
	for _, k := range Kinds() {
		decl := declare(k)
		resolved, err := decl.Parameters.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema for %s: %w", decl.Name, err)
		}
		r.decls = append(r.decls, decl)
		r.resolved[k] = resolved
		r.ctx.debugf("[verbose] registered tool: %s", decl.Name)
	}
	return r, nil
}

// Declarations returns the tool declarations in a stable order.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Names returns the declared tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.decls))
	for _, d := range r.decls {
		names = append(names, d.Name)
	}
	return names
}

// Execute validates the call arguments and runs the matching handler.
// Unknown names and invalid arguments return a *ClientError; handler
// failures are wrapped with errorsx.ReasonToolExec.
func (r *Registry) Execute(ctx context.Context, call Call) (Result, error) {
	kind, err := ParseKind(call.Name)
	if err != nil {
		return Result{}, errorsx.Wrap(err, errorsx.ReasonToolUnknown)
	}

	args, err := normalizeArgs(call.Args)
	if err != nil {
		return Result{}, errorsx.Wrap(&ClientError{Reason: err.Error(), Err: ErrInvalidArguments}, errorsx.ReasonToolArgs)
	}
	if err := r.resolved[kind].Validate(args); err != nil {
		return Result{}, errorsx.Wrap(&ClientError{Reason: err.Error(), Err: ErrInvalidArguments}, errorsx.ReasonToolArgs)
	}

	r.ctx.debugf("[verbose] %s: id=%s args=%v", call.Name, call.ID, args)
	response, err := r.run(ctx, kind, args)
	if err != nil {
		r.ctx.debugf("[verbose] %s: failed: %v", call.Name, err)
		return Result{}, errorsx.Wrap(fmt.Errorf("%s: %w", call.Name, err), errorsx.ReasonToolExec)
	}
	return Result{ID: call.ID, Name: call.Name, Response: response}, nil
}

func (r *Registry) run(ctx context.Context, kind Kind, args map[string]any) (map[string]any, error) {
	switch kind {
	case KindGetDateAndTime:
		return getDateAndTime(r.ctx.Now), nil
	case KindAdd:
		var in operands
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return add(in), nil
	case KindMultiply:
		var in operands
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return multiply(in), nil
	case KindCallSearchAgent:
		var in searchArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return callSearchAgent(ctx, r.ctx.Searcher, in)
	default:
		return nil, fmt.Errorf("no handler for %s", kind)
	}
}

// ErrorResult builds the result sent back to the model when a call could not be run.
func ErrorResult(call Call, err error) Result {
	return Result{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"error": err.Error()},
	}
}

// normalizeArgs round-trips the arguments through JSON so schema validation
// and decoding always see JSON-native types.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(args)
}
