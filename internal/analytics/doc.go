// Package analytics is the aggregation engine behind every dashboard view.
//
// Every function is pure: it reads a slice of sales and returns freshly
// allocated results without mutating its input. Empty input yields empty or
// zeroed output, and every ratio guards its denominator. Sales that break
// the quantity or price invariants are skipped; Partition reports how many
// so callers can log them.
package analytics
