package analytics

import "github.com/alanyoungcy/resaledash/internal/domain"

// Valid reports whether s may take part in aggregation.
func Valid(s domain.Sale) bool {
	return s.Quantity >= 1 && !s.TicketPrice.IsNegative()
}

// Partition splits sales into the usable ones and a count of the rest.
func Partition(sales []domain.Sale) (valid []domain.Sale, invalid int) {
	valid = make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if Valid(s) {
			valid = append(valid, s)
			continue
		}
		invalid++
	}
	return valid, invalid
}
