package domain

// Passage is one retrieved knowledge-base excerpt.
type Passage struct {
	SourceID   string  `json:"doc_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}
