package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kamilpajak/nourish/pkg/models"
)

// CreateDocument stores a knowledge-bank document and its unembedded chunks.
func (s *Store) CreateDocument(ctx context.Context, title string, chunks []string) (*models.KnowledgeDocument, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc := &models.KnowledgeDocument{Title: title, Chunks: len(chunks), CreatedAt: time.Now().UTC()}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO kb_documents (title, created_at) VALUES (?, ?)`,
		title, doc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	if doc.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}

	for i, text := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kb_chunks (document_id, ordinal, text) VALUES (?, ?, ?)`,
			doc.ID, i, text,
		); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents with their chunk counts, oldest first.
func (s *Store) ListDocuments(ctx context.Context) ([]models.KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, COUNT(c.id), d.created_at
		FROM kb_documents d LEFT JOIN kb_chunks c ON c.document_id = d.id
		GROUP BY d.id ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
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

// UnembeddedChunks returns up to limit chunks that have no embedding yet.
func (s *Store) UnembeddedChunks(ctx context.Context, limit int) ([]models.KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, text FROM kb_chunks WHERE embedding IS NULL ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
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

// CountUnembeddedChunks returns the number of chunks still waiting for an embedding.
func (s *Store) CountUnembeddedChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_chunks WHERE embedding IS NULL`).Scan(&n)
	return n, err
}

// SetChunkEmbeddings stores vecs[i] as the embedding of chunk ids[i].
func (s *Store) SetChunkEmbeddings(ctx context.Context, ids []int64, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(ids))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, id := range ids {
		data, err := json.Marshal(vecs[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE kb_chunks SET embedding = ? WHERE id = ?`, string(data), id); err != nil {
			return fmt.Errorf("failed to update chunk %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// NearestChunks returns the k embedded chunks most similar to vec by cosine
// similarity. Vectors are compared in memory.
func (s *Store) NearestChunks(ctx context.Context, vec []float32, k int) ([]models.KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, text, embedding FROM kb_chunks WHERE embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		chunk models.KnowledgeChunk
		score float64
	}
	var all []scored
	for rows.Next() {
		var c models.KnowledgeChunk
		var raw string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &raw); err != nil {
			return nil, err
		}
		var emb []float32
		if err := json.Unmarshal([]byte(raw), &emb); err != nil {
			return nil, fmt.Errorf("failed to decode embedding of chunk %d: %w", c.ID, err)
		}
		all = append(all, scored{chunk: c, score: cosine(vec, emb)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > k {
		all = all[:k]
	}

	out := make([]models.KnowledgeChunk, len(all))
	for i, sc := range all {
		out[i] = sc.chunk
	}
	return out, nil
}

// cosine returns 0 for mismatched or zero-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
