package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// SaleStore implements domain.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore creates a new SaleStore backed by the given connection pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

var _ domain.SaleStore = (*SaleStore)(nil)

// List returns raw sale rows joined with their event and category. Every
// column is scanned as nullable; normalisation happens in the ingest layer.
func (s *SaleStore) List(ctx context.Context, q domain.SaleQuery) ([]domain.SaleRow, error) {
	query, args := buildSaleQuery(q)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales: %w", err)
	}
	defer rows.Close()

	var out []domain.SaleRow
	for rows.Next() {
		var r domain.SaleRow
		if err := rows.Scan(
			&r.ID, &r.EventID, &r.Section, &r.Quantity, &r.TicketPrice,
			&r.Platform, &r.SoldAt, &r.Notes,
			&r.EventName, &r.EventDate, &r.Venue, &r.EventRound,
			&r.CategoryID, &r.CategoryName,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate sales: %w", err)
	}
	return out, nil
}

// buildSaleQuery renders the read contract: event-id set, half-open sold_at
// range, direction and row limit.
func buildSaleQuery(q domain.SaleQuery) (string, []any) {
	query := `
		SELECT s.id::text, s.event_id::text, s.section, s.quantity::bigint,
		       s.ticket_price::text, s.platform, s.sold_at, s.notes,
		       e.name, e.event_date, e.venue, e.round,
		       c.id::text, c.name
		FROM sales s
		LEFT JOIN events e ON e.id = s.event_id
		LEFT JOIN categories c ON c.id = e.category_id
		WHERE 1=1`
	args := []any{}
	argIdx := 1

	if len(q.EventIDs) > 0 {
		query += fmt.Sprintf(" AND s.event_id::text = ANY($%d)", argIdx)
		args = append(args, q.EventIDs)
		argIdx++
	}
	if q.Since != nil {
		query += fmt.Sprintf(" AND s.sold_at >= $%d", argIdx)
		args = append(args, *q.Since)
		argIdx++
	}
	if q.Until != nil {
		query += fmt.Sprintf(" AND s.sold_at < $%d", argIdx)
		args = append(args, *q.Until)
		argIdx++
	}

	if q.Desc {
		query += " ORDER BY s.sold_at DESC, s.id"
	} else {
		query += " ORDER BY s.sold_at ASC, s.id"
	}

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.Limit)
	}
	return query, args
}

const insertSaleSQL = `
	INSERT INTO sales (event_id, section, quantity, ticket_price, platform, sold_at, notes)
	VALUES ($1::uuid, NULLIF($2, ''), $3, $4::text::numeric, $5, $6, NULLIF($7, ''))
	RETURNING id::text`

func saleArgs(n domain.NewSale) []any {
	return []any{
		n.EventID, n.Section, n.Quantity, n.TicketPrice.String(),
		string(n.Platform), n.SoldAt, n.Notes,
	}
}

// Insert stores a single validated sale and returns its id.
func (s *SaleStore) Insert(ctx context.Context, n domain.NewSale) (string, error) {
	var id string
	if err := s.pool.QueryRow(ctx, insertSaleSQL, saleArgs(n)...).Scan(&id); err != nil {
		return "", fmt.Errorf("postgres: insert sale: %w", err)
	}
	return id, nil
}

// InsertBatch stores sales in one transaction. Either every row is written
// or none is.
func (s *SaleStore) InsertBatch(ctx context.Context, sales []domain.NewSale) (int64, error) {
	if len(sales) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin sale batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, n := range sales {
		batch.Queue(insertSaleSQL, saleArgs(n)...)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range sales {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: insert sale batch item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("postgres: close sale batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit sale batch: %w", err)
	}
	return int64(len(sales)), nil
}
