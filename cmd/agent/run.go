package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimiro1/banner"

	"github.com/minhyannv/gemini-agent-go/pkg/agent"
	configpkg "github.com/minhyannv/gemini-agent-go/pkg/config"
	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	loggerpkg "github.com/minhyannv/gemini-agent-go/pkg/logger"
	"github.com/minhyannv/gemini-agent-go/pkg/prompt"
	"github.com/minhyannv/gemini-agent-go/pkg/provider/gemini"
	"github.com/minhyannv/gemini-agent-go/pkg/provider/openaicompat"
	"github.com/minhyannv/gemini-agent-go/pkg/session"
	"github.com/minhyannv/gemini-agent-go/pkg/tools"
)

const bannerTitle = "GEMINI AGENT"

// errReported marks failures that runAgent has already logged.
var errReported = errors.New("agent failed to start")

// runAgent wires the clients, tools and session, then runs the loop until the
// user exits.
func runAgent(ctx context.Context, cfg configpkg.Config, s streams) error {
	appLogger := loggerpkg.NewWriterLogger(s.Err)
	loggerpkg.Debug(cfg.Verbose, appLogger, "agent config", map[string]any{
		"provider":        cfg.Provider,
		"model":           cfg.Model,
		"search_model":    cfg.SearchModel,
		"stream":          cfg.Stream,
		"max_tool_rounds": cfg.MaxToolRounds,
		"max_concurrency": cfg.MaxConcurrency,
		"timeout":         cfg.RequestTimeout.String(),
	})

	loop, err := buildLoop(ctx, cfg, appLogger)
	if err != nil {
		loggerpkg.Error(appLogger, "startup failed", errorsx.Fields(err))
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return loop.Run(ctx, s.In, s.Out, s.Err)
}

func buildLoop(ctx context.Context, cfg configpkg.Config, appLogger loggerpkg.Logger) (*agent.Loop, error) {
	prompts, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	// One genai client serves both the conversation and the search tool.
	geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey,
		gemini.WithSearchModel(cfg.SearchModel),
		gemini.WithLogger(appLogger, cfg.Verbose),
	)
	if err != nil {
		return nil, err
	}

	registry, err := tools.New(tools.Context{
		Verbose:  cfg.Verbose,
		Logger:   appLogger,
		Searcher: geminiClient,
	})
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	sess, err := session.Start(ctx, newBackend(cfg, geminiClient, appLogger), session.Options{
		Model:             cfg.Model,
		SystemInstruction: prompt.BuildSystemPrompt(prompts, registry.Names()),
		Generation:        session.DefaultGenerationConfig(),
		Tools:             registry.Declarations(),
	},
		session.WithLogger(appLogger, cfg.Verbose),
		session.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, err
	}

	return agent.New(sess, registry, agent.Options{
		Welcome:        welcomeText(prompts.WelcomeMessage),
		Stream:         cfg.Stream,
		MaxToolRounds:  cfg.MaxToolRounds,
		MaxConcurrency: cfg.MaxConcurrency,
	}, agent.WithLogger(appLogger, cfg.Verbose))
}

func newBackend(cfg configpkg.Config, geminiClient *gemini.Client, l loggerpkg.Logger) session.Backend {
	if cfg.Provider == configpkg.ProviderOpenAI {
		return openaicompat.NewClient(cfg.GeminiAPIKey, cfg.BaseURL, openaicompat.WithLogger(l, cfg.Verbose))
	}
	return geminiClient
}

// welcomeText renders the title banner followed by the welcome message.
func welcomeText(message string) string {
	var buf bytes.Buffer
	banner.Init(&buf, true, false, bytes.NewBufferString(`{{ .Title "`+bannerTitle+`" "" 0 }}`))
	title := strings.TrimRight(buf.String(), "\n")
	if title == "" {
		return message
	}
	return title + "\n\n" + message
}
