// Package prompt holds the static text the agent shows the model and the user.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts is the catalog of persona and interface text.
type Prompts struct {
	SystemPrompt   string `yaml:"system_prompt"`
	WelcomeMessage string `yaml:"welcome_message"`
	Usage          string `yaml:"usage"`
}

// Default returns the built-in catalog.
func Default() Prompts {
	p, err := parse(defaultPrompts)
	if err != nil {
		panic(fmt.Sprintf("prompt: embedded prompts.yaml is invalid: %v", err))
	}
	return p
}

// Load returns the built-in catalog with any non-empty fields from the YAML
// file at path applied on top. An empty path returns Default().
func Load(path string) (Prompts, error) {
	base := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts file: %w", err)
	}
	override, err := parse(content)
	if err != nil {
		return Prompts{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if override.SystemPrompt != "" {
		base.SystemPrompt = override.SystemPrompt
	}
	if override.WelcomeMessage != "" {
		base.WelcomeMessage = override.WelcomeMessage
	}
	if override.Usage != "" {
		base.Usage = override.Usage
	}
	return base, nil
}

func parse(content []byte) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(content, &p); err != nil {
		return Prompts{}, err
	}
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	p.WelcomeMessage = strings.TrimSpace(p.WelcomeMessage)
	p.Usage = strings.TrimSpace(p.Usage)
	return p, nil
}

// BuildSystemPrompt constructs the system instruction, including the tool names.
func BuildSystemPrompt(p Prompts, toolNames []string) string {
	var sb strings.Builder
	sb.WriteString(p.SystemPrompt)
	if len(toolNames) > 0 {
		sb.WriteString("\nTools available: ")
		sb.WriteString(strings.Join(toolNames, ", "))
		sb.WriteString(".")
	}
	return strings.TrimSpace(sb.String())
}
