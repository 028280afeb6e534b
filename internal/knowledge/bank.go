// Package knowledge maintains the gold-standard knowledge bank: documents
// are split into overlapping chunks, embedded in batches and retrieved by
// similarity to a session's context.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/sirupsen/logrus"
)

// Defaults for chunking, indexing and retrieval.
const (
	ChunkSize     = 1200
	ChunkOverlap  = 200
	IndexBatch    = 64
	DefaultTopK   = 3
	ExcerptLength = 800

	queryCacheSize = 128
)

// ErrNoEmbedder is returned when indexing is requested without an embedding client.
var ErrNoEmbedder = errors.New("no embedding model configured")

// Store persists documents, chunks and their embeddings.
type Store interface {
	CreateDocument(ctx context.Context, title string, chunks []string) (*models.KnowledgeDocument, error)
	ListDocuments(ctx context.Context) ([]models.KnowledgeDocument, error)
	UnembeddedChunks(ctx context.Context, limit int) ([]models.KnowledgeChunk, error)
	CountUnembeddedChunks(ctx context.Context) (int, error)
	SetChunkEmbeddings(ctx context.Context, ids []int64, vecs [][]float32) error
	NearestChunks(ctx context.Context, vec []float32, k int) ([]models.KnowledgeChunk, error)
}

// Bank is the knowledge bank. It satisfies consult.Retriever.
type Bank struct {
	store    Store
	embedder llm.Embedder
	cache    *lru.Cache[string, []float32]
	log      *logrus.Entry
}

// NewBank creates a Bank. embedder may be nil, in which case documents can
// still be added but not indexed, and retrieval returns nothing.
func NewBank(store Store, embedder llm.Embedder, logger *logrus.Logger) *Bank {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cache, _ := lru.New[string, []float32](queryCacheSize)
	return &Bank{
		store:    store,
		embedder: embedder,
		cache:    cache,
		log:      logger.WithField("component", "knowledge"),
	}
}

// Chunk splits text into windows of size characters, each starting
// size-overlap characters after the previous one.
func Chunk(text string, size, overlap int) []string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return nil
	}
	step := max(1, size-overlap)

	var out []string
	for i := 0; i < len(r); i += step {
		end := min(i+size, len(r))
		out = append(out, string(r[i:end]))
	}
	return out
}

// AddDocument chunks text and stores it unembedded. Blank documents are
// skipped and return nil.
func (b *Bank) AddDocument(ctx context.Context, title, text string) (*models.KnowledgeDocument, error) {
	chunks := Chunk(text, ChunkSize, ChunkOverlap)
	if len(chunks) == 0 {
		return nil, nil
	}
	doc, err := b.store.CreateDocument(ctx, title, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to store document %q: %w", title, err)
	}
	b.log.WithFields(logrus.Fields{"title": title, "chunks": len(chunks)}).Info("Added knowledge document")
	return doc, nil
}

// Documents lists the stored documents.
func (b *Bank) Documents(ctx context.Context) ([]models.KnowledgeDocument, error) {
	return b.store.ListDocuments(ctx)
}

// BuildIndex embeds every chunk that has no embedding yet, batch chunks per
// request. It returns how many chunks were embedded and how many remain.
func (b *Bank) BuildIndex(ctx context.Context, batch int) (embedded, remaining int, err error) {
	if b.embedder == nil {
		return 0, 0, ErrNoEmbedder
	}
	if batch <= 0 {
		batch = IndexBatch
	}

	for {
		chunks, err := b.store.UnembeddedChunks(ctx, batch)
		if err != nil {
			return embedded, 0, fmt.Errorf("failed to list chunks: %w", err)
		}
		if len(chunks) == 0 {
			break
		}

		texts := make([]string, len(chunks))
		ids := make([]int64, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
			ids[i] = c.ID
		}

		vecs, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			remaining, _ = b.store.CountUnembeddedChunks(ctx)
			return embedded, remaining, fmt.Errorf("failed to embed batch: %w", err)
		}
		for _, v := range vecs {
			normalize(v)
		}
		if err := b.store.SetChunkEmbeddings(ctx, ids, vecs); err != nil {
			return embedded, 0, fmt.Errorf("failed to store embeddings: %w", err)
		}

		embedded += len(chunks)
		b.log.WithField("embedded", embedded).Debug("Indexed batch")
	}

	remaining, err = b.store.CountUnembeddedChunks(ctx)
	if err != nil {
		return embedded, 0, err
	}
	return embedded, remaining, nil
}

// Retrieve returns the topK chunks most similar to query, each trimmed to
// ExcerptLength characters and separated by a blank line.
func (b *Bank) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	if b.embedder == nil {
		return "", nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := b.queryVector(ctx, query)
	if err != nil {
		return "", err
	}

	chunks, err := b.store.NearestChunks(ctx, vec, topK)
	if err != nil {
		return "", fmt.Errorf("failed to search chunks: %w", err)
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = excerpt(c.Text, ExcerptLength)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (b *Bank) queryVector(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := b.cache.Get(query); ok {
		return vec, nil
	}
	vecs, err := b.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
	}
	normalize(vecs[0])
	b.cache.Add(query, vecs[0])
	return vecs[0], nil
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// normalize scales v to unit length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-8
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
