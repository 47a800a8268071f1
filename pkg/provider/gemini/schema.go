package gemini

import (
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

// FunctionDeclarations converts tool declarations to genai function declarations.
// Tools without properties are declared without parameters.
func FunctionDeclarations(decls []tools.Declaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if d.Parameters != nil && len(d.Parameters.Properties) > 0 {
			fd.Parameters = toSchema(d.Parameters)
		}
		out = append(out, fd)
	}
	return out
}

func toSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
	}
	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toSchema(s.Items)
	}
	return out
}
