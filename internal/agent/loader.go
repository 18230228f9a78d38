// Package agent implements the agent runtime: markdown-defined agents, the
// registries that serve them, the tool surface and the ReAct executor.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"gopkg.in/yaml.v3"
)

// frontMatter is the optional YAML block at the top of an agent file. Values
// in the markdown sections win over front matter on conflict.
type frontMatter struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	Priority    *int     `yaml:"priority"`
	Tags        []string `yaml:"tags"`
	Reflection  struct {
		Enabled     bool     `yaml:"enabled"`
		Prompt      string   `yaml:"prompt"`
		Model       string   `yaml:"model"`
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"reflection"`
}

var headerPattern = regexp.MustCompile(`^(#{1,3})\s*(?:\d+\.\s*)?(.+?)\s*$`)

// toolIDPattern matches dotted tool slugs such as file.read. Dots stay part
// of the ID; surrounding prose and backticks do not.
var toolIDPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*`)

// Loader parses markdown agent definitions.
type Loader struct {
	logger *logging.Logger
}

// NewLoader creates an agent definition loader.
func NewLoader(logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadFile parses one agent definition file. The agent ID is the file name
// without extension, lowercased.
func (l *Loader) LoadFile(path string) (*core.AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ErrExecution("AGENT_READ_FAILED", "reading agent file "+path).WithCause(err)
	}
	def, err := l.Parse(string(data))
	if err != nil {
		return nil, err
	}
	def.ID = strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	def.SourcePath = path
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Parse parses agent definition markdown. Front matter is optional; the
// numbered sections Metadata, Capabilities, Languages, Tags, Tools Available
// and System Prompt may appear in any order and any may be missing except
// System Prompt.
func (l *Loader) Parse(content string) (*core.AgentDefinition, error) {
	def := &core.AgentDefinition{
		Temperature: 0.7,
		Priority:    core.DefaultAgentPriority,
	}

	body, fm, err := splitFrontMatter(content)
	if err != nil {
		return nil, err
	}
	if fm != nil {
		applyFrontMatter(def, fm)
	}

	sections := splitMarkdownSections(body, def)
	for name, text := range sections {
		switch normalizeSection(name) {
		case "metadata":
			l.parseMetadata(def, text)
		case "capabilities":
			l.parseCapabilities(def, text)
		case "languages":
			def.Languages = bulletItems(text)
		case "tags":
			def.Tags = append(def.Tags, bulletItems(text)...)
		case "tools", "toolsavailable":
			def.Tools = parseToolIDs(text)
		case "systemprompt", "prompt":
			def.SystemPrompt = strings.TrimSpace(text)
		}
	}

	def.Temperature = clampTemperature(def.Temperature)
	def.Reflection.Temperature = clampTemperature(def.Reflection.Temperature)
	return def, nil
}

func applyFrontMatter(def *core.AgentDefinition, fm *frontMatter) {
	def.Provider = fm.Provider
	def.Model = fm.Model
	if fm.Temperature != nil {
		def.Temperature = *fm.Temperature
	}
	if fm.Priority != nil {
		def.Priority = *fm.Priority
	}
	def.Tags = append(def.Tags, fm.Tags...)
	def.Reflection = core.ReflectionSettings{
		Enabled: fm.Reflection.Enabled,
		Prompt:  fm.Reflection.Prompt,
		Model:   fm.Reflection.Model,
	}
	if fm.Reflection.Temperature != nil {
		def.Reflection.Temperature = *fm.Reflection.Temperature
	}
}

// splitFrontMatter peels the leading YAML block off, when present. A UTF-8
// BOM before the opening fence is tolerated.
func splitFrontMatter(content string) (string, *frontMatter, error) {
	trimmed := strings.TrimLeft(content, "\ufeff\n\r ")
	if !strings.HasPrefix(trimmed, "---\n") && trimmed != "---" {
		return content, nil, nil
	}
	rest := strings.TrimPrefix(trimmed, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content, nil, core.ErrValidation("AGENT_PARSE_FAILED", "unterminated front matter")
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return "", nil, core.ErrValidation("AGENT_PARSE_FAILED", "invalid front matter").WithCause(err)
	}
	body := rest[end+len("\n---"):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	}
	return body, &fm, nil
}

// splitMarkdownSections maps H2/H3 section names to their body text. The H1
// title and the text before the first H2 become Name and Description.
func splitMarkdownSections(content string, def *core.AgentDefinition) map[string]string {
	sections := make(map[string]string)
	var currentName string
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if currentName == "" {
			def.Description = text
		} else {
			sections[currentName] = text
		}
		buf = nil
	}

	for _, line := range strings.Split(content, "\n") {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			buf = append(buf, line)
			continue
		}
		if m[1] == "#" {
			def.Name = strings.TrimSpace(m[2])
			continue
		}
		flush()
		currentName = m[2]
	}
	flush()
	return sections
}

func normalizeSection(name string) string {
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, name)
	return name
}

// parseMetadata reads "- Key: Value" bullets.
func (l *Loader) parseMetadata(def *core.AgentDefinition, text string) {
	for _, item := range bulletItems(text) {
		key, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "provider":
			def.Provider = value
		case "model":
			def.Model = value
		case "temperature":
			if t, err := strconv.ParseFloat(value, 64); err == nil {
				def.Temperature = t
			} else {
				l.logger.Warn("unparseable temperature in agent metadata", "value", value)
			}
		case "priority":
			if p, err := strconv.Atoi(value); err == nil {
				def.Priority = p
			} else {
				l.logger.Warn("unparseable priority in agent metadata", "value", value)
			}
		case "description":
			def.Description = value
		}
	}
}

// parseCapabilities keeps valid capabilities and drops the rest with a
// warning; one typo must not take the whole agent down.
func (l *Loader) parseCapabilities(def *core.AgentDefinition, text string) {
	for _, item := range bulletItems(text) {
		c := core.Capability(strings.ToLower(strings.Fields(item)[0]))
		if !c.IsValid() {
			l.logger.Warn("dropping invalid capability", "capability", string(c))
			continue
		}
		def.Capabilities = append(def.Capabilities, c)
	}
}

func parseToolIDs(text string) []string {
	var tools []string
	seen := make(map[string]bool)
	for _, item := range bulletItems(text) {
		item = strings.Trim(item, "`")
		id := toolIDPattern.FindString(item)
		if id == "" {
			continue
		}
		id = strings.ToLower(id)
		if !seen[id] {
			seen[id] = true
			tools = append(tools, id)
		}
	}
	return tools
}

// bulletItems returns the content of "-" and "*" bullets; non-bullet lines
// are ignored.
func bulletItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			if item := strings.TrimSpace(line[2:]); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

func clampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// LoadDir loads every .md file in a directory, skipping files that fail to
// parse so one broken definition cannot empty the registry.
func (l *Loader) LoadDir(dir string) ([]*core.AgentDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading agent directory %s: %w", dir, err)
	}
	var defs []*core.AgentDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping unparseable agent file", "path", path, "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}
