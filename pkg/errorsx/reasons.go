package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfigMissing ReasonCode = "config_missing"

	ReasonTransport         ReasonCode = "transport"
	ReasonMalformedResponse ReasonCode = "malformed_response"

	ReasonToolUnknown ReasonCode = "tool_unknown"
	ReasonToolArgs    ReasonCode = "tool_args"
	ReasonToolExec    ReasonCode = "tool_exec"
	ReasonToolRounds  ReasonCode = "tool_rounds"
)
