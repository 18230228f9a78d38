package core

import (
	"strings"
)

// Capability tags what an agent can do. Steps request a capability and the
// registry selects the most specialized agent that advertises it.
type Capability string

const (
	CapChat          Capability = "chat"
	CapCoding        Capability = "coding"
	CapReview        Capability = "review"
	CapDocumentation Capability = "documentation"
	CapAnalysis      Capability = "analysis"
	CapDigestion     Capability = "digestion"
	CapFixing        Capability = "fixing"
)

var baseCapabilities = map[Capability]bool{
	CapChat:          true,
	CapCoding:        true,
	CapReview:        true,
	CapDocumentation: true,
	CapAnalysis:      true,
	CapDigestion:     true,
	CapFixing:        true,
}

// IsValid reports whether the capability is a member of the base set or an
// ingest capability of the form ingest:<ext> or ingest:*.
func (c Capability) IsValid() bool {
	if baseCapabilities[c] {
		return true
	}
	s := string(c)
	if !strings.HasPrefix(s, "ingest:") {
		return false
	}
	return len(s) > len("ingest:")
}

// ReflectionSettings configures an optional self-review pass after the first
// draft. A review that returns exactly "APPROVED" keeps the draft unchanged.
type ReflectionSettings struct {
	Enabled     bool
	Prompt      string
	Model       string  // defaults to the agent model
	Temperature float64 // defaults to 0.3
}

// AgentDefinition is the declarative descriptor of an agent, typically parsed
// from a markdown file.
type AgentDefinition struct {
	ID           string // slug, unique case-insensitively
	Name         string
	Description  string
	Provider     string
	Model        string
	Temperature  float64 // clamped to [0,1]
	SystemPrompt string  // template with {{context.<key>}} placeholders
	Capabilities []Capability
	Languages    []string
	Tags         []string
	Priority     int // lower = more specialized
	Tools        []string
	Reflection   ReflectionSettings
	SourcePath   string
}

// DefaultAgentPriority is assigned when the definition omits a priority.
const DefaultAgentPriority = 50

// HasCapability reports whether the agent advertises the capability.
func (d *AgentDefinition) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if strings.EqualFold(string(have), string(c)) {
			return true
		}
	}
	return false
}

// SupportsLanguage reports whether the agent handles a language. An agent
// with no language list handles all languages.
func (d *AgentDefinition) SupportsLanguage(lang string) bool {
	if len(d.Languages) == 0 {
		return true
	}
	for _, l := range d.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the agent carries any of the given tags.
func (d *AgentDefinition) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range d.Tags {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// Validate checks definition invariants.
func (d *AgentDefinition) Validate() error {
	if d.ID == "" {
		return ErrValidation("AGENT_ID_REQUIRED", "agent ID cannot be empty")
	}
	if d.SystemPrompt == "" {
		return ErrValidation("SYSTEM_PROMPT_REQUIRED", "agent "+d.ID+" has no system prompt")
	}
	for _, c := range d.Capabilities {
		if !c.IsValid() {
			return ErrValidation("INVALID_CAPABILITY", "agent "+d.ID+" declares unknown capability "+string(c))
		}
	}
	return nil
}

// AgentContext carries the inputs of a single agent invocation.
type AgentContext struct {
	Prompt        string
	History       []Message
	WorkspacePath string
	Properties    map[string]string
}

// Property returns a context property, or empty string when missing.
func (c *AgentContext) Property(key string) string {
	if c.Properties == nil {
		return ""
	}
	return c.Properties[key]
}

// AgentOutput is the result of a successful agent invocation.
type AgentOutput struct {
	Content    string
	TokensUsed int
	Artifacts  map[string]string
}
