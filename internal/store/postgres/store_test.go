package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

func TestBuildSaleQuery(t *testing.T) {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 1, 0)

	query, args := buildSaleQuery(domain.SaleQuery{
		EventIDs: []string{"e1", "e2"},
		Since:    &since,
		Until:    &until,
		Desc:     true,
		Limit:    500,
	})
	assert.Contains(t, query, "s.event_id::text = ANY($1)")
	assert.Contains(t, query, "s.sold_at >= $2")
	assert.Contains(t, query, "s.sold_at < $3")
	assert.Contains(t, query, "ORDER BY s.sold_at DESC, s.id")
	assert.Contains(t, query, "LIMIT $4")
	assert.Equal(t, []any{[]string{"e1", "e2"}, since, until, 500}, args)
}

func TestBuildSaleQueryUnfiltered(t *testing.T) {
	query, args := buildSaleQuery(domain.SaleQuery{})
	assert.Contains(t, query, "ORDER BY s.sold_at ASC")
	assert.NotContains(t, query, "LIMIT")
	assert.NotContains(t, query, "ANY(")
	assert.Empty(t, args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_Club\\`, escapeLike(` 100% _Club\ `))
	assert.Equal(t, "World Cup", escapeLike("World Cup"))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:6543/postgres?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "postgres", User: "u", Password: "p", SSLMode: "require"}))
	assert.Equal(t, "postgres://given", DSN(ClientConfig{DSN: "postgres://given", Host: "ignored"}))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_schema.sql", "002_change_notify.sql", "003_event_round.sql"}, names)
}
