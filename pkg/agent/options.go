package agent

import loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"

// Options controls loop behavior.
type Options struct {
	// Welcome is printed once before the first prompt.
	Welcome string
	// Stream sends user turns with SendMessageStream.
	Stream bool
	// MaxToolRounds bounds tool rounds per user turn. Zero means unlimited.
	MaxToolRounds int
	// MaxConcurrency bounds concurrent tool calls in one batch. Zero means unlimited.
	MaxConcurrency int
}

// LoopOption configures optional runtime dependencies for Loop.
type LoopOption func(*loopDeps)

type loopDeps struct {
	logger  loggerpkg.Logger
	verbose bool
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger, verbose bool) LoopOption {
	return func(d *loopDeps) {
		if l != nil {
			d.logger = l
		}
		d.verbose = verbose
	}
}
