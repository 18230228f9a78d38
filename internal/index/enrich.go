package index

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

// identifierPattern matches code-like tokens worth a graph lookup: CamelCase
// names and dotted paths. Plain lowercase words are skipped; they are almost
// never type names.
var identifierPattern = regexp.MustCompile(`\b(?:[A-Z][a-zA-Z0-9_]*|[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)+)\b`)

// maxEnrichTokens caps how many distinct identifiers one prompt gets looked
// up; beyond that the prompt is prose, not code.
const maxEnrichTokens = 12

// Enricher augments a prompt with code graph context. Every failure inside
// enrichment is swallowed: a workflow must never fail because enrichment
// could not help it.
type Enricher struct {
	graph  *Graph
	logger *logging.Logger
}

// NewEnricher creates an enricher over graph queries.
func NewEnricher(graph *Graph, logger *logging.Logger) *Enricher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Enricher{graph: graph, logger: logger}
}

// Enrich extracts identifier-like tokens from the prompt, looks each up in
// the code graph and renders what it finds as a context block. An empty
// string means nothing useful was found.
func (e *Enricher) Enrich(ctx context.Context, workspaceID, prompt string) string {
	tokens := extractIdentifiers(prompt)
	if len(tokens) == 0 {
		return ""
	}

	var sections []string
	for _, token := range tokens {
		nodes, err := e.graph.FindNodes(ctx, core.NodeFilter{Name: token, WorkspaceID: workspaceID})
		if err != nil {
			e.logger.Debug("graph lookup failed", "token", token, "error", err)
			continue
		}
		for _, node := range nodes {
			section := e.describeNode(ctx, node)
			if section != "" {
				sections = append(sections, section)
			}
		}
	}
	if len(sections) == 0 {
		return ""
	}
	return "Relevant code structure:\n\n" + strings.Join(sections, "\n\n")
}

// describeNode renders one node with its members or implementations.
func (e *Enricher) describeNode(ctx context.Context, node core.CodeNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s:%d)", node.NodeType, node.FQN, node.FilePath, node.Line)

	var related []core.CodeNode
	var label string
	var err error
	if node.NodeType == core.NodeInterface {
		label = "implemented by"
		related, err = e.graph.FindImplementations(ctx, node.ID)
	} else {
		label = "members"
		related, err = e.graph.TypeMembers(ctx, node.ID)
	}
	if err != nil {
		e.logger.Debug("graph expansion failed", "node", node.ID, "error", err)
		return b.String()
	}
	if len(related) > 0 {
		fmt.Fprintf(&b, "\n  %s:", label)
		for _, r := range related {
			sig := r.Signature
			if sig == "" {
				sig = r.Name
			}
			fmt.Fprintf(&b, "\n    %s", sig)
		}
	}
	return b.String()
}

// extractIdentifiers pulls distinct identifier tokens from text, first-seen
// order, capped at maxEnrichTokens. Dotted paths also contribute their last
// segment, which is usually the type name.
func extractIdentifiers(text string) []string {
	matches := identifierPattern.FindAllString(text, -1)
	seen := make(map[string]bool)
	var tokens []string
	add := func(tok string) {
		if len(tok) < 3 || seen[tok] || len(tokens) >= maxEnrichTokens {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	for _, m := range matches {
		add(m)
		if i := strings.LastIndex(m, "."); i >= 0 {
			add(m[i+1:])
		}
	}
	return tokens
}
