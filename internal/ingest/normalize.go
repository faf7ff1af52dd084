package ingest

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// legacyRound matches the round labels older imports wrote into sale notes,
// e.g. "Round: Quarter-final" or "round=R16".
var legacyRound = regexp.MustCompile(`(?i)\bround\s*[:=]\s*([^;|\n]+)`)

// Normalize converts raw store rows into sales. Rows with a missing id or
// timestamp, an unparseable or negative price, or a quantity below one are
// dropped and counted; each drop is logged at warn level.
func Normalize(rows []domain.SaleRow, logger *slog.Logger) ([]domain.Sale, int) {
	sales := make([]domain.Sale, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		s, err := normalizeRow(row)
		if err != nil {
			skipped++
			if logger != nil {
				logger.Warn("ingest: skipping malformed sale row",
					slog.String("sale_id", str(row.ID)),
					slog.String("reason", err.Error()),
				)
			}
			continue
		}
		sales = append(sales, s)
	}
	return sales, skipped
}

func normalizeRow(row domain.SaleRow) (domain.Sale, error) {
	id := str(row.ID)
	if id == "" {
		return domain.Sale{}, fmt.Errorf("%w: missing id", domain.ErrInvalidSale)
	}
	if row.SoldAt == nil || row.SoldAt.IsZero() {
		return domain.Sale{}, fmt.Errorf("%w: missing sold_at", domain.ErrInvalidSale)
	}
	if row.TicketPrice == nil {
		return domain.Sale{}, fmt.Errorf("%w: missing ticket_price", domain.ErrInvalidSale)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(*row.TicketPrice))
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: ticket_price %q: %v", domain.ErrInvalidSale, *row.TicketPrice, err)
	}
	if row.Quantity == nil {
		return domain.Sale{}, fmt.Errorf("%w: missing quantity", domain.ErrInvalidSale)
	}

	platform, ok := domain.ParsePlatform(str(row.Platform))
	if !ok {
		platform = "unknown"
	}
	s := domain.Sale{
		ID:           id,
		SoldAt:       *row.SoldAt,
		TicketPrice:  price,
		Quantity:     int(*row.Quantity),
		Platform:     platform,
		Section:      str(row.Section),
		EventID:      str(row.EventID),
		Notes:        str(row.Notes),
		EventName:    str(row.EventName),
		EventDate:    row.EventDate,
		Venue:        str(row.Venue),
		CategoryID:   str(row.CategoryID),
		CategoryName: str(row.CategoryName),
		Round:        str(row.EventRound),
	}
	if s.Round == "" {
		s.Round = RoundFromNotes(s.Notes)
	}
	if err := s.Validate(); err != nil {
		return domain.Sale{}, err
	}
	return s, nil
}

// RoundFromNotes extracts a legacy round label from free-text notes.
func RoundFromNotes(notes string) string {
	m := legacyRound.FindStringSubmatch(notes)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
