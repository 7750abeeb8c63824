package vector

import "fmt"

// Mode selects which Upstash credential a client uses.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Metadata keys written by the ingestion pipeline.
const (
	MetaTitle    = "title"
	MetaType     = "type"
	MetaContent  = "content"
	MetaCategory = "category"
	MetaTags     = "tags"
)

// Metadata is the open mapping stored next to every vector.
type Metadata map[string]any

// NewMetadata builds metadata with the keys every chunk carries.
func NewMetadata(title, chunkType, content, category string, tags []string) Metadata {
	if tags == nil {
		tags = []string{}
	}
	return Metadata{
		MetaTitle:    title,
		MetaType:     chunkType,
		MetaContent:  content,
		MetaCategory: category,
		MetaTags:     tags,
	}
}

// String returns the value at key rendered as a string, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (m Metadata) Title() string    { return m.String(MetaTitle) }
func (m Metadata) Content() string  { return m.String(MetaContent) }
func (m Metadata) Category() string { return m.String(MetaCategory) }

// Tags handles both []string and the []any produced by JSON decoding.
func (m Metadata) Tags() []string {
	switch v := m[MetaTags].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

// Chunk is one unit of stored profile text. Text is what gets embedded.
type Chunk struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Match is a single query hit, ordered by the remote service.
type Match struct {
	ID       string    `json:"id"`
	Score    float64   `json:"score"`
	Metadata Metadata  `json:"metadata,omitempty"`
	Vector   []float32 `json:"vector,omitempty"`
}

// QueryRequest describes a text query; embedding happens server-side.
type QueryRequest struct {
	Text            string
	TopK            int
	IncludeMetadata bool
	IncludeVectors  bool
	Filter          string // Upstash metadata filter, e.g. "category = 'technical'"
}

// IndexInfo is the diagnostic view of the index.
type IndexInfo struct {
	VectorCount        int    `json:"vectorCount"`
	PendingVectorCount int    `json:"pendingVectorCount"`
	IndexSize          int64  `json:"indexSize"`
	Dimension          int    `json:"dimension"`
	SimilarityFunction string `json:"similarityFunction"`
}
