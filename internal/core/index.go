package core

import (
	"time"
)

// ContentType classifies a chunk's payload.
type ContentType string

const (
	ContentCode      ContentType = "code"
	ContentMarkdown  ContentType = "markdown"
	ContentPlainText ContentType = "plaintext"
	ContentSection   ContentType = "section"
	ContentParagraph ContentType = "paragraph"
	ContentFile      ContentType = "file"
)

// Chunk is a semantic slice of a source file, the unit of retrieval.
// Embedding is nil when no embedding provider is available; the row is
// written regardless.
type Chunk struct {
	ContentID   string
	SourcePath  string
	WorkspaceID string
	ChunkIndex  int
	Text        string
	ContentType ContentType
	Language    string
	Embedding   []float32
	SymbolName  string
	FQN         string
	StartLine   int
	EndLine     int
	Metadata    map[string]string
}

// NodeType classifies a code graph node.
type NodeType string

const (
	NodeClass     NodeType = "class"
	NodeInterface NodeType = "interface"
	NodeStruct    NodeType = "struct"
	NodeRecord    NodeType = "record"
	NodeEnum      NodeType = "enum"
	NodeMethod    NodeType = "method"
	NodeProperty  NodeType = "property"
	NodeField     NodeType = "field"
	NodeEvent     NodeType = "event"
)

// CodeNode is a typed node in the code graph.
type CodeNode struct {
	ID             string
	WorkspaceID    string
	NodeType       NodeType
	Name           string
	FQN            string
	FilePath       string
	Line           int
	Signature      string
	Modifiers      string
	RepositoryPath string
}

// EdgeType classifies a code graph edge.
type EdgeType string

const (
	EdgeContains   EdgeType = "contains"
	EdgeImplements EdgeType = "implements"
	EdgeInherits   EdgeType = "inherits"
	EdgeCalls      EdgeType = "calls"
	EdgeReferences EdgeType = "references"
)

// CodeEdge connects two code graph nodes.
type CodeEdge struct {
	ID       string
	EdgeType EdgeType
	SourceID string
	TargetID string
}

// IndexType distinguishes the two coupled indices built per workspace.
type IndexType string

const (
	IndexRAG   IndexType = "rag"
	IndexGraph IndexType = "graph"
)

// IndexMetadata records the state of one index family for a workspace.
type IndexMetadata struct {
	WorkspaceID      string
	IndexType        IndexType
	IndexedCommitSHA string
	IndexedAt        time.Time
	ItemsCreated     int
}

// Freshness describes how an index relates to the workspace HEAD.
type Freshness struct {
	Fresh         bool
	IndexedSHA    string
	HeadSHA       string
	CommitsBehind int
	IndexedAt     time.Time
}
