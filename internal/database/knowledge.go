package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/pgvector/pgvector-go"
)

// CreateDocument stores a knowledge-bank document and its unembedded chunks.
func (db *DB) CreateDocument(ctx context.Context, title string, chunks []string) (*models.KnowledgeDocument, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc := models.KnowledgeDocument{Title: title, Chunks: len(chunks)}
	err = tx.QueryRow(ctx,
		`INSERT INTO kb_documents (title) VALUES ($1) RETURNING id, created_at`,
		title,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	rows := make([][]any, len(chunks))
	for i, text := range chunks {
		rows[i] = []any{doc.ID, i, text}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"kb_chunks"},
		[]string{"document_id", "ordinal", "text"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all documents with their chunk counts, oldest first.
func (db *DB) ListDocuments(ctx context.Context) ([]models.KnowledgeDocument, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT d.id, d.title, COUNT(c.id), d.created_at
		 FROM kb_documents d LEFT JOIN kb_chunks c ON c.document_id = d.id
		 GROUP BY d.id
		 ORDER BY d.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []models.KnowledgeDocument{}
	for rows.Next() {
		var d models.KnowledgeDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Chunks, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (db *DB) queryChunks(ctx context.Context, sql string, args ...any) ([]models.KnowledgeChunk, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.KnowledgeChunk
	for rows.Next() {
		var c models.KnowledgeChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// UnembeddedChunks returns up to limit chunks that have no embedding yet.
func (db *DB) UnembeddedChunks(ctx context.Context, limit int) ([]models.KnowledgeChunk, error) {
	return db.queryChunks(ctx,
		`SELECT id, document_id, ordinal, text FROM kb_chunks
		 WHERE embedding IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
}

// CountUnembeddedChunks returns the number of chunks still waiting for an embedding.
func (db *DB) CountUnembeddedChunks(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks WHERE embedding IS NULL`).Scan(&n)
	return n, err
}

// SetChunkEmbeddings stores vecs[i] as the embedding of chunk ids[i].
func (db *DB) SetChunkEmbeddings(ctx context.Context, ids []int64, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(ids))
	}

	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(`UPDATE kb_chunks SET embedding = $1 WHERE id = $2`, pgvector.NewVector(vecs[i]), id)
	}
	return db.pool.SendBatch(ctx, batch).Close()
}

// NearestChunks returns the k embedded chunks closest to vec by cosine distance.
func (db *DB) NearestChunks(ctx context.Context, vec []float32, k int) ([]models.KnowledgeChunk, error) {
	return db.queryChunks(ctx,
		`SELECT id, document_id, ordinal, text FROM kb_chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(vec), k,
	)
}
