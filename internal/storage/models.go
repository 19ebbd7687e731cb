package storage

// IndexDocument is one indexed architecture diagram. Documents are
// immutable once written; re-ingesting the same PDF writes new documents
// with fresh ids and the same names (there is no cross-run dedup key).
type IndexDocument struct {
	ID              string    // UUID, generated at assembly time
	Name            string    // Diagram title from the extraction model
	Content         string    // Synthesized text: name + service lists + summary
	ArchitectureURL string    // Blob location of the matching diagram crop
	Source          string    // Source document stem, for filtering
	Embedding       []float32 // 1536-dim vector over Content
}

// ScoredDocument is a search hit with its relevance score.
type ScoredDocument struct {
	Document *IndexDocument
	Score    float64
}

// CollectionName is the single Qdrant collection for all diagrams.
const CollectionName = "architectures"

// VectorName is the named vector holding the content embedding.
const VectorName = "content_vector"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536
