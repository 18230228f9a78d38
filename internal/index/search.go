package index

import (
	"math"
	"sort"
	"strings"

	"github.com/aura-dev/aura/internal/core"
	"github.com/sahilm/fuzzy"
)

// rankChunks scores candidates against the query and returns the top k.
// Lexical score dominates; cosine similarity breaks lexical ties when both
// query and chunk carry embeddings. Remaining ties fall back to source path
// and chunk index so results are stable across runs.
func rankChunks(query string, queryEmbedding []float32, candidates []core.Chunk, k int) []core.ScoredChunk {
	if len(candidates) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}

	scored := make([]core.ScoredChunk, 0, len(candidates))
	for i := range candidates {
		lex := lexicalScore(query, &candidates[i])
		if lex <= 0 {
			continue
		}
		scored = append(scored, core.ScoredChunk{Chunk: candidates[i], LexicalScore: lex})
	}

	if len(queryEmbedding) > 0 {
		for i := range scored {
			scored[i].CosineScore = cosine(queryEmbedding, scored[i].Chunk.Embedding)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		if a.CosineScore != b.CosineScore {
			return a.CosineScore > b.CosineScore
		}
		if a.Chunk.SourcePath != b.Chunk.SourcePath {
			return a.Chunk.SourcePath < b.Chunk.SourcePath
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// lexicalScore combines term hits in the chunk text with a fuzzy match
// against the symbol name. Symbol hits weigh more than body hits.
func lexicalScore(query string, chunk *core.Chunk) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	body := strings.ToLower(chunk.Text)

	matched := 0
	for _, term := range terms {
		if strings.Contains(body, term) {
			matched++
		}
	}
	score := float64(matched) / float64(len(terms))

	if chunk.SymbolName != "" {
		matches := fuzzy.Find(query, []string{chunk.SymbolName, chunk.FQN})
		if len(matches) > 0 {
			// fuzzy scores are unbounded; squash into (0, 1].
			score += 1.0 / (1.0 + math.Exp(-float64(matches[0].Score)/64.0))
		}
	}
	return score
}

// cosine computes cosine similarity, 0 when either vector is absent or the
// dimensions disagree.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
