package models

import "time"

// KnowledgeDocument is a gold-standard case added to the knowledge bank.
type KnowledgeDocument struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeChunk is one overlapping slice of a document's text.
type KnowledgeChunk struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
}
