package tools

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// dateLayout matches JavaScript's Date.toISOString for UTC times.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

type operands struct {
	A float64 `mapstructure:"a"`
	B float64 `mapstructure:"b"`
}

type searchArgs struct {
	Prompt string `mapstructure:"prompt"`
}

func numberPair(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: description,
		Required:    []string{"a", "b"},
		Properties: map[string]*jsonschema.Schema{
			"a": {Type: "number", Description: "The first number"},
			"b": {Type: "number", Description: "The second number"},
		},
	}
}

func declare(k Kind) Declaration {
	d := Declaration{Kind: k, Name: k.String()}
	switch k {
	case KindCallSearchAgent:
		d.Description = "Perform a web search to retrieve information that you don't know or that you think will take part in the future."
		d.Parameters = &jsonschema.Schema{
			Type:        "object",
			Description: "Query the web with these properties.",
			Required:    []string{"prompt"},
			Properties: map[string]*jsonschema.Schema{
				"prompt": {Type: "string", Description: "The search query"},
			},
		}
	case KindGetDateAndTime:
		d.Description = "Get the current date"
		d.Parameters = &jsonschema.Schema{Type: "object"}
	case KindAdd:
		d.Description = "Add two numbers together. Use this for accurate addition."
		d.Parameters = numberPair("The numbers to add together")
	case KindMultiply:
		d.Description = "Multiply two numbers together. Use this for accurate multiplication."
		d.Parameters = numberPair("The numbers to multiply together")
	}
	return d
}

func getDateAndTime(now func() time.Time) map[string]any {
	return map[string]any{"date": now().UTC().Format(dateLayout)}
}

func add(in operands) map[string]any {
	return map[string]any{"additionResult": in.A + in.B}
}

func multiply(in operands) map[string]any {
	return map[string]any{"multiplicationResult": in.A * in.B}
}

func callSearchAgent(ctx context.Context, searcher Searcher, in searchArgs) (map[string]any, error) {
	if searcher == nil {
		return nil, ErrNoSearcher
	}
	text, err := searcher.Search(ctx, in.Prompt)
	if err != nil {
		return nil, err
	}
	return map[string]any{"searchResults": text}, nil
}
