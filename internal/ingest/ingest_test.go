package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

func ptr[T any](v T) *T { return &v }

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	now        = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
)

type fakeSales struct {
	rows    []domain.SaleRow
	err     error
	queries []domain.SaleQuery
}

func (f *fakeSales) List(_ context.Context, q domain.SaleQuery) ([]domain.SaleRow, error) {
	f.queries = append(f.queries, q)
	return f.rows, f.err
}

func (f *fakeSales) Insert(context.Context, domain.NewSale) (string, error) { return "", nil }

func (f *fakeSales) InsertBatch(context.Context, []domain.NewSale) (int64, error) { return 0, nil }

type fakeEvents struct {
	events []domain.Event
	byCat  [][]string
	byIDs  [][]string
}

func (f *fakeEvents) ListByCategories(_ context.Context, ids []string) ([]domain.Event, error) {
	f.byCat = append(f.byCat, ids)
	var out []domain.Event
	for _, e := range f.events {
		for _, id := range ids {
			if e.CategoryID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeEvents) ListByIDs(_ context.Context, ids []string) ([]domain.Event, error) {
	f.byIDs = append(f.byIDs, ids)
	var out []domain.Event
	for _, e := range f.events {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeEvents) ListAll(context.Context) ([]domain.Event, error) { return f.events, nil }

type fakeCategories struct {
	all []domain.Category
}

func (f *fakeCategories) ListAll(context.Context) ([]domain.Category, error) { return f.all, nil }

func (f *fakeCategories) MatchName(_ context.Context, kw string) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range f.all {
		if c.Name == kw {
			out = append(out, c)
		}
	}
	return out, nil
}

func row(id, event, price string, qty int64) domain.SaleRow {
	return domain.SaleRow{
		ID:          ptr(id),
		EventID:     ptr(event),
		TicketPrice: ptr(price),
		Quantity:    ptr(qty),
		Platform:    ptr("LFT"),
		SoldAt:      ptr(now.Add(-time.Hour)),
	}
}

func TestNormalize(t *testing.T) {
	withJoin := row("ok", "e1", "120.50", 2)
	withJoin.EventName = ptr("Liverpool vs Everton")
	withJoin.CategoryName = ptr("Liverpool FC")
	withJoin.Notes = ptr("Round: Quarter-final; paid")

	noJoin := row("bare", "", "10", 1)
	noJoin.Platform = nil

	badPrice := row("bad-price", "e1", "abc", 1)
	negPrice := row("neg", "e1", "-3", 1)
	zeroQty := row("zero", "e1", "10", 0)
	noQty := row("noqty", "e1", "10", 1)
	noQty.Quantity = nil
	noTime := row("notime", "e1", "10", 1)
	noTime.SoldAt = nil
	noID := row("", "e1", "10", 1)

	sales, skipped := Normalize([]domain.SaleRow{withJoin, noJoin, badPrice, negPrice, zeroQty, noQty, noTime, noID}, testLogger)
	assert.Equal(t, 6, skipped)
	require.Len(t, sales, 2)

	s := sales[0]
	assert.Equal(t, "120.5", s.TicketPrice.String())
	assert.Equal(t, 2, s.Quantity)
	assert.Equal(t, domain.PlatformLiveFootballTickets, s.Platform)
	assert.Equal(t, "Liverpool vs Everton", s.EventName)
	assert.Equal(t, "Quarter-final", s.Round)

	bare := sales[1]
	assert.False(t, bare.Attached())
	assert.Empty(t, bare.EventName)
	assert.Nil(t, bare.EventDate)
	assert.Equal(t, domain.Platform("unknown"), bare.Platform)
}

func TestNormalizePrefersEventRound(t *testing.T) {
	r := row("a", "e1", "1", 1)
	r.EventRound = ptr("Final")
	r.Notes = ptr("round=R16")
	sales, _ := Normalize([]domain.SaleRow{r}, nil)
	require.Len(t, sales, 1)
	assert.Equal(t, "Final", sales[0].Round)
}

func TestRoundFromNotes(t *testing.T) {
	assert.Equal(t, "Group A", RoundFromNotes("round: Group A"))
	assert.Equal(t, "R16", RoundFromNotes("paid | ROUND=R16 | delivered"))
	assert.Empty(t, RoundFromNotes("Turnaround expected"))
	assert.Empty(t, RoundFromNotes(""))
}

func TestDescendants(t *testing.T) {
	all := []domain.Category{
		{ID: "root", Name: "Football"},
		{ID: "wc", Name: "World Cup", ParentID: "root"},
		{ID: "wc-q", Name: "Qualifiers", ParentID: "wc"},
		{ID: "lfc", Name: "Liverpool FC", ParentID: "root"},
		{ID: "loop-a", ParentID: "loop-b"},
		{ID: "loop-b", ParentID: "loop-a"},
	}
	assert.Equal(t, []string{"wc", "wc-q"}, Descendants(all, []domain.Category{{ID: "wc"}}))
	assert.Equal(t, []string{"loop-a", "loop-b"}, Descendants(all, []domain.Category{{ID: "loop-a"}}))
}

func newFixture() (*fakeSales, *fakeEvents, *fakeCategories) {
	cats := &fakeCategories{all: []domain.Category{
		{ID: "wc", Name: "World Cup"},
		{ID: "wc-q", Name: "Qualifiers", ParentID: "wc"},
		{ID: "lfc", Name: "Liverpool FC"},
	}}
	events := &fakeEvents{events: []domain.Event{
		{ID: "e1", Name: "England vs France", CategoryID: "wc-q"},
		{ID: "e2", Name: "Liverpool vs Everton", CategoryID: "lfc"},
	}}
	sales := &fakeSales{rows: []domain.SaleRow{row("s1", "e1", "80", 2)}}
	return sales, events, cats
}

func TestFetchByCategoryIncludesDescendants(t *testing.T) {
	sales, events, cats := newFixture()
	a := NewAdapter(sales, events, cats, 5000, testLogger)

	snap, err := a.Fetch(context.Background(), domain.View{Name: "wc", Filter: domain.SaleFilter{CategoryKeyword: "World Cup", Days: 30}}, now)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"wc", "wc-q"}}, events.byCat)
	require.Len(t, sales.queries, 1)
	q := sales.queries[0]
	assert.Equal(t, []string{"e1"}, q.EventIDs)
	assert.Equal(t, 5000, q.Limit)
	require.NotNil(t, q.Since)
	assert.Equal(t, now.AddDate(0, 0, -30), *q.Since)

	assert.Len(t, snap.Sales, 1)
	assert.Len(t, snap.Events, 1)
	assert.Equal(t, now, snap.FetchedAt)
}

func TestFetchNoMatchingCategoryIsEmpty(t *testing.T) {
	sales, events, cats := newFixture()
	a := NewAdapter(sales, events, cats, 5000, testLogger)

	snap, err := a.Fetch(context.Background(), domain.View{Name: "x", Filter: domain.SaleFilter{CategoryKeyword: "Cricket"}}, now)
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.NotNil(t, snap.Sales)
	assert.Empty(t, sales.queries, "no sales scan without events")
}

func TestFetchExplicitEventIDsSkipCategories(t *testing.T) {
	sales, events, cats := newFixture()
	a := NewAdapter(sales, events, cats, 5000, testLogger)

	_, err := a.Fetch(context.Background(), domain.View{Name: "x", Filter: domain.SaleFilter{EventIDs: []string{"e2"}, CategoryKeyword: "World Cup"}}, now)
	require.NoError(t, err)
	assert.Empty(t, events.byCat)
	assert.Equal(t, []string{"e2"}, sales.queries[0].EventIDs)
}

func TestFetchUnscopedLoadsEventsForSales(t *testing.T) {
	sales, events, cats := newFixture()
	a := NewAdapter(sales, events, cats, 100, testLogger)

	snap, err := a.Fetch(context.Background(), domain.View{Name: "all"}, now)
	require.NoError(t, err)
	assert.Nil(t, sales.queries[0].EventIDs)
	assert.Equal(t, [][]string{{"e1"}}, events.byIDs)
	assert.Len(t, snap.Events, 1)
}

func TestFetchPropagatesStoreError(t *testing.T) {
	sales, events, cats := newFixture()
	sales.err = errors.New("connection refused")
	a := NewAdapter(sales, events, cats, 100, testLogger)

	_, err := a.Fetch(context.Background(), domain.View{Name: "all"}, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
