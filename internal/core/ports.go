package core

import (
	"context"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation.
type Message struct {
	Role    Role
	Content string
}

// LLMResponse is the provider's answer to a chat or generate call.
type LLMResponse struct {
	Content    string
	TokensUsed int
}

// LLMProvider is the contract the core requires from a model provider.
// Implementations map transport failures to the GENERATION_FAILED,
// RATE_LIMITED, PROVIDER_UNAVAILABLE and CANCELLED error kinds.
type LLMProvider interface {
	ID() string
	Chat(ctx context.Context, model string, messages []Message, temperature float64) (*LLMResponse, error)
	Generate(ctx context.Context, model, prompt string, temperature float64) (*LLMResponse, error)
}

// EmbeddingProvider computes vector embeddings for chunk text. Optional:
// when absent, chunks are stored without embeddings and search degrades to
// lexical ranking.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WorkflowStore persists workflows and their steps. Every orchestrator
// transition is written through before the call returns.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, w *Workflow) error
	LoadWorkflow(ctx context.Context, id WorkflowID) (*Workflow, error)
	ListWorkflows(ctx context.Context, workspaceID string) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id WorkflowID) error
}

// ChunkFilter restricts a retrieval query.
type ChunkFilter struct {
	ContentTypes []ContentType
	Language     string
	FQNPrefix    string
}

// ScoredChunk is a search hit with its ranking components.
type ScoredChunk struct {
	Chunk        Chunk
	LexicalScore float64
	CosineScore  float64
}

// NodeFilter restricts a graph node query.
type NodeFilter struct {
	Name        string
	NodeType    NodeType
	WorkspaceID string
}

// IndexStore persists chunks, graph nodes/edges and index metadata.
// ReplaceFile is atomic per (workspace, source path): a failed write never
// leaves mixed old and new rows for one file.
type IndexStore interface {
	ReplaceFile(ctx context.Context, workspaceID, sourcePath string, chunks []Chunk, nodes []CodeNode, edges []CodeEdge) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	SearchChunks(ctx context.Context, query string, workspaceIDs []string, k int, filter *ChunkFilter) ([]ScoredChunk, error)
	FindNodes(ctx context.Context, filter NodeFilter) ([]CodeNode, error)
	OutboundEdges(ctx context.Context, nodeID string, edgeType EdgeType) ([]CodeEdge, error)
	InboundEdges(ctx context.Context, nodeID string, edgeType EdgeType) ([]CodeEdge, error)
	NodeByID(ctx context.Context, id string) (*CodeNode, error)
	SaveMetadata(ctx context.Context, meta IndexMetadata) error
	LoadMetadata(ctx context.Context, workspaceID string, indexType IndexType) (*IndexMetadata, error)
	HasIndex(ctx context.Context, workspaceID string) (bool, error)
}
