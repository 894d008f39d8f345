package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/euria/council-engine/embedding"
)

// PostgresBackend is a pgvector-backed dense backend grounded on
// repository/legal_chunk_repository.go's formatVector helper and cosine
// <=> operator, and cmd/create-schema/main.go's HNSW index DDL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// formatVector renders a dense vector as a pgvector literal, e.g.
// "[0.1,0.2,0.3]", following legal_chunk_repository.go's formatVector.
func formatVector(v embedding.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (p *PostgresBackend) Upsert(ctx context.Context, id string, vec embedding.Vector) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, embedding)
		VALUES ($1, $2::vector)
		ON CONFLICT (chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding
	`, id, formatVector(vec))
	if err != nil {
		return fmt.Errorf("upsert embedding for chunk %s: %w", id, err)
	}
	return nil
}

func (p *PostgresBackend) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE chunk_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete embedding for chunk %s: %w", id, err)
	}
	return nil
}

// Search uses pgvector's cosine-distance operator (<=>); since embeddings
// are L2-normalized, 1 - distance is cosine similarity.
func (p *PostgresBackend) Search(ctx context.Context, query embedding.Vector, candidateIDs []string, topM int) ([]DenseResult, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT chunk_id, 1 - (embedding <=> $1::vector) AS score
		FROM chunk_embeddings
		WHERE chunk_id = ANY($2)
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, formatVector(query), candidateIDs, topM)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	defer rows.Close()

	var results []DenseResult
	for rows.Next() {
		var r DenseResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, fmt.Errorf("scan dense search row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
