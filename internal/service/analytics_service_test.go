package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
)

func TestAnalyticsExcludesInvalidSales(t *testing.T) {
	st := riskyState()
	bad := saleAt("bad", "e-liv", "Liverpool vs Chelsea", "-5", 1, testNow)
	st.Snapshot.Sales = append(st.Snapshot.Sales, bad)

	sum := newTestAnalytics().Summary(st)
	assert.Equal(t, 15, sum.Units)
	assert.Equal(t, 4, sum.OrderCount)
	assert.True(t, sum.Revenue.Equal(dec("1420")), sum.Revenue.String())
}

func TestAnalyticsSummaryOfMissingSnapshot(t *testing.T) {
	sum := newTestAnalytics().Summary(domain.ViewState{View: allView, Status: domain.ViewStatusLoading})
	assert.Equal(t, 0, sum.Units)
	assert.True(t, sum.Revenue.IsZero())
}

func TestAnalyticsSeriesDefaultsToTrailingDays(t *testing.T) {
	a := NewAnalyticsService(nil, AnalyticsConfig{SeriesDays: 14}, discardLogger())
	a.now = fixedNow

	series, err := a.Series(riskyState(), nil, nil)
	require.NoError(t, err)
	require.Len(t, series, 14)
	assert.Equal(t, "2025-06-02", series[0].Day)
	assert.Equal(t, "2025-06-15", series[13].Day)

	from := testNow.AddDate(0, 0, -2)
	series, err = a.Series(riskyState(), &from, nil)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, 2, series[0].Units, "sale two days ago")
	assert.Equal(t, 1, series[1].Units, "sale one day ago")
}

func TestAnalyticsSeriesRejectsOversizedRange(t *testing.T) {
	a := NewAnalyticsService(nil, AnalyticsConfig{MaxSeriesDays: 31}, discardLogger())
	a.now = fixedNow

	from := testNow.AddDate(0, 0, -30)
	series, err := a.Series(riskyState(), &from, nil)
	require.NoError(t, err)
	assert.Len(t, series, 31)

	from = testNow.AddDate(0, 0, -31)
	_, err = a.Series(riskyState(), &from, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	ancient := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = a.Series(riskyState(), &ancient, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	to := testNow.AddDate(0, 0, -5)
	_, err = a.Series(riskyState(), &testNow, &to)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestAnalyticsLeaderboardAttachesFixtures(t *testing.T) {
	st := riskyState()
	st.Snapshot.Sales = append(st.Snapshot.Sales, domain.Sale{
		ID: "loose", TicketPrice: dec("5000"), Quantity: 1,
		Platform: domain.PlatformTixstock, SoldAt: testNow,
	})

	board := newTestAnalytics().Leaderboard(st, analytics.RankByRevenue, 0)
	require.Len(t, board, 3)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, analytics.UnattachedKey, board[0].EventID)
	assert.Nil(t, board[0].Fixture)
	assert.Equal(t, "e-eng", board[1].EventID)
	require.NotNil(t, board[1].Fixture)
	assert.NotNil(t, board[1].Fixture.Away)

	board = newTestAnalytics().Leaderboard(st, analytics.RankByUnits, 1)
	require.Len(t, board, 1)
	assert.Equal(t, "e-eng", board[0].EventID)
}

func TestAnalyticsRiskFloor(t *testing.T) {
	a := newTestAnalytics()
	assert.Len(t, a.Risk(riskyState(), ""), 2)
	high := a.Risk(riskyState(), analytics.RiskHigh)
	require.Len(t, high, 1)
	assert.Equal(t, "e-eng", high[0].EventID)
}

func TestAnalyticsSalesPaging(t *testing.T) {
	a := NewAnalyticsService(nil, AnalyticsConfig{PageSize: 2, MaxPageSize: 3}, discardLogger())
	st := riskyState()

	page := a.Sales(st, SalesQuery{})
	assert.Equal(t, 2, page.PageSize)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "s2", page.Items[0].ID, "newest first by default")

	page = a.Sales(st, SalesQuery{PageSize: 100})
	assert.Equal(t, 3, page.PageSize)

	page = a.Sales(st, SalesQuery{
		Filter: analytics.Filter{EventID: "e-liv"},
		Sort:   []analytics.SortKey{{Field: analytics.SortSoldAt}},
	})
	require.Len(t, page.Items, 2)
	assert.Equal(t, "s3", page.Items[0].ID)
}

func TestAnalyticsHeatmapUsesLocation(t *testing.T) {
	loc := time.FixedZone("BST", 3600)
	a := NewAnalyticsService(nil, AnalyticsConfig{Location: loc}, discardLogger())
	st := domain.ViewState{View: allView, Snapshot: &domain.Snapshot{Sales: []domain.Sale{
		saleAt("s1", "e1", "A vs B", "10", 3, time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)),
	}}}

	rep := a.Heatmap(st)
	assert.Equal(t, "BST", rep.Timezone)
	require.NotNil(t, rep.Peak)
	assert.Equal(t, 0, rep.Peak.Hour)
	assert.Equal(t, time.Monday, rep.Peak.Weekday)
}
