package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// CategoryStore implements domain.CategoryStore using PostgreSQL.
type CategoryStore struct {
	pool *pgxpool.Pool
}

// NewCategoryStore creates a new CategoryStore backed by the given connection pool.
func NewCategoryStore(pool *pgxpool.Pool) *CategoryStore {
	return &CategoryStore{pool: pool}
}

var _ domain.CategoryStore = (*CategoryStore)(nil)

// ListAll returns the whole category tree.
func (s *CategoryStore) ListAll(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, name, parent_id::text FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list categories: %w", err)
	}
	return collectCategories(rows)
}

// MatchName returns categories whose name contains keyword, ignoring case.
func (s *CategoryStore) MatchName(ctx context.Context, keyword string) ([]domain.Category, error) {
	const query = `
		SELECT id::text, name, parent_id::text
		FROM categories
		WHERE name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY name`
	rows, err := s.pool.Query(ctx, query, escapeLike(keyword))
	if err != nil {
		return nil, fmt.Errorf("postgres: match categories %q: %w", keyword, err)
	}
	return collectCategories(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes keyword match literally inside a LIKE pattern.
func escapeLike(keyword string) string {
	return likeEscaper.Replace(strings.TrimSpace(keyword))
}

func collectCategories(rows pgx.Rows) ([]domain.Category, error) {
	defer rows.Close()
	out := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		var parent *string
		if err := rows.Scan(&c.ID, &c.Name, &parent); err != nil {
			return nil, fmt.Errorf("postgres: scan category: %w", err)
		}
		c.ParentID = deref(parent)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate categories: %w", err)
	}
	return out, nil
}
