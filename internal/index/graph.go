package index

import (
	"context"

	"github.com/aura-dev/aura/internal/core"
)

// Graph answers structural queries over the code graph.
type Graph struct {
	store core.IndexStore
}

// NewGraph creates a graph query facade over a store.
func NewGraph(store core.IndexStore) *Graph {
	return &Graph{store: store}
}

// FindNodes looks nodes up by name, case-insensitive.
func (g *Graph) FindNodes(ctx context.Context, filter core.NodeFilter) ([]core.CodeNode, error) {
	return g.store.FindNodes(ctx, filter)
}

// FindImplementations returns the nodes implementing an interface node.
func (g *Graph) FindImplementations(ctx context.Context, interfaceNodeID string) ([]core.CodeNode, error) {
	edges, err := g.store.InboundEdges(ctx, interfaceNodeID, core.EdgeImplements)
	if err != nil {
		return nil, err
	}
	return g.resolve(ctx, edges, func(e core.CodeEdge) string { return e.SourceID })
}

// TypeMembers returns the methods and fields contained by a type node.
func (g *Graph) TypeMembers(ctx context.Context, typeNodeID string) ([]core.CodeNode, error) {
	edges, err := g.store.OutboundEdges(ctx, typeNodeID, core.EdgeContains)
	if err != nil {
		return nil, err
	}
	return g.resolve(ctx, edges, func(e core.CodeEdge) string { return e.TargetID })
}

// resolve loads the node on the far side of each edge, skipping dangling
// references left by partial re-indexing.
func (g *Graph) resolve(ctx context.Context, edges []core.CodeEdge, pick func(core.CodeEdge) string) ([]core.CodeNode, error) {
	nodes := make([]core.CodeNode, 0, len(edges))
	for _, e := range edges {
		node, err := g.store.NodeByID(ctx, pick(e))
		if err != nil {
			if core.IsCategory(err, core.ErrCatNotFound) {
				continue
			}
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}
