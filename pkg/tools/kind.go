package tools

import "fmt"

// Kind enumerates the tools the agent can run. The set is closed: every Kind
// has a declaration in declare and a branch in Registry.run.
type Kind int

const (
	KindGetDateAndTime Kind = iota + 1
	KindAdd
	KindMultiply
	KindCallSearchAgent
)

// Kinds returns every tool kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindCallSearchAgent, KindGetDateAndTime, KindAdd, KindMultiply}
}

// String returns the tool name advertised to the model.
func (k Kind) String() string {
	switch k {
	case KindGetDateAndTime:
		return "getDateAndTime"
	case KindAdd:
		return "add"
	case KindMultiply:
		return "multiply"
	case KindCallSearchAgent:
		return "callSearchAgent"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a tool name from the model to its Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, &ClientError{Reason: fmt.Sprintf("unknown tool: %s", name), Err: ErrUnknownTool}
}
