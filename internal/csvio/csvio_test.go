package csvio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
)

func exportSales() []domain.Sale {
	at := time.Date(2025, 5, 4, 18, 45, 0, 0, time.UTC)
	mk := func(id, event, section, price string, qty int, p domain.Platform, h int) domain.Sale {
		return domain.Sale{
			ID:          id,
			EventID:     "ev-" + event,
			EventName:   event,
			Section:     section,
			TicketPrice: decimal.RequireFromString(price),
			Quantity:    qty,
			Platform:    p,
			SoldAt:      at.Add(time.Duration(h) * time.Hour),
		}
	}
	return []domain.Sale{
		mk("1", "Liverpool vs Everton", "Kop 102", "120.50", 2, domain.PlatformLiveFootballTickets, 0),
		mk("2", "Liverpool vs Everton", `Main "Stand", Upper`, "95", 1, domain.PlatformFanpass, 1),
		mk("3", "England vs France", "", "60.125", 4, domain.PlatformTixstock, 2),
		mk("4", "England vs France", "Block 110", "0", 2, "Viagogo", 3),
		mk("5", "Liverpool vs Chelsea", "Anfield Road", "150", 1, domain.PlatformLiveTicketGroup, 4),
	}
}

type tuple struct {
	event, section string
	qty            int
	price          string
}

func tuplesOf(sales []domain.Sale) []tuple {
	out := make([]tuple, len(sales))
	for i, s := range sales {
		out[i] = tuple{s.EventName, s.Section, s.Quantity, s.TicketPrice.String()}
	}
	return out
}

func TestWriteSalesFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSales(&buf, exportSales()[:1], time.UTC))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "#,Platform,Event,Section,Qty,Price,Total,Date", lines[0])
	assert.Equal(t, "1,LFT,Liverpool vs Everton,Kop 102,2,120.50,241.00,2025-05-04 18:45", lines[1])
}

func TestWriteSalesLocalTime(t *testing.T) {
	loc := time.FixedZone("BST", 3600)
	var buf bytes.Buffer
	require.NoError(t, WriteSales(&buf, exportSales()[:1], loc))
	assert.Contains(t, buf.String(), "2025-05-04 19:45")
}

func TestExportRoundTrip(t *testing.T) {
	filters := []analytics.Filter{
		{},
		{Search: "liverpool"},
		{Platforms: []domain.Platform{"LFT", "FP"}},
		{MinQty: 2},
	}
	sorts := [][]analytics.SortKey{
		nil,
		{{Field: analytics.SortPrice, Desc: true}},
		{{Field: analytics.SortEvent}, {Field: analytics.SortSection}},
	}
	for _, f := range filters {
		for _, keys := range sorts {
			view := analytics.SortSales(analytics.FilterSales(exportSales(), f), keys)

			var buf bytes.Buffer
			require.NoError(t, WriteSales(&buf, view, time.UTC))
			rows, err := ParseExport(&buf, time.UTC)
			require.NoError(t, err)
			require.Len(t, rows, len(view))

			got := make([]tuple, len(rows))
			for i, r := range rows {
				got[i] = tuple{r.Event, r.Section, r.Quantity, r.Price.String()}
				assert.Equal(t, i+1, r.Index)
				assert.True(t, r.Total.Equal(r.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))))
			}
			assert.Equal(t, tuplesOf(view), got)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"Liverpool":                  "liverpool-sales.csv",
		"World Cup / Internationals": "world-cup-internationals-sales.csv",
		"  Atlético  Madrid! ":       "atletico-madrid-sales.csv",
		"":                           "dashboard-sales.csv",
	}
	for in, want := range tests {
		assert.Equal(t, want, FileName(in), in)
	}
}

const importSheet = "\ufeffevent name,CATEGORY,Section,Quantity,Price,Platform,Date\n" +
	"Liverpool vs Everton,Liverpool FC,Kop 102,2,120,LFT,2025-05-04 18:45\n" +
	"England vs France,World Cup,,1,£85.50,Tixstock,2025-05-05\n" +
	"\n" +
	"England vs France,World Cup,Block 1,zero,85,FP,2025-05-05\n" +
	"England vs France,World Cup,Block 1,0,85,FP,2025-05-05\n" +
	"England vs France,World Cup,Block 1,1,-5,FP,2025-05-05\n" +
	",World Cup,Block 1,1,5,FP,2025-05-05\n" +
	"England vs France,World Cup,Block 1,1,5,,2025-05-05\n" +
	"England vs France,World Cup,Block 1,1,5,LTG,next week\n" +
	"Liverpool vs Chelsea,Liverpool FC,Main,3,\"1,000.00\",livefootballtickets,04/05/2025\n"

func TestParseImport(t *testing.T) {
	sheet, err := ParseImport(strings.NewReader(importSheet), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, 9, sheet.Total)
	assert.Len(t, sheet.Rows, 3)
	assert.Len(t, sheet.Issues, 6)
	assert.Equal(t, sheet.Total, len(sheet.Rows)+len(sheet.Issues))

	first := sheet.Rows[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "Liverpool vs Everton", first.EventName)
	assert.Equal(t, domain.PlatformLiveFootballTickets, first.Platform)
	assert.Equal(t, time.Date(2025, 5, 4, 18, 45, 0, 0, time.UTC), first.Date)

	second := sheet.Rows[1]
	assert.Equal(t, "85.5", second.Price.String())
	assert.Equal(t, domain.PlatformTixstock, second.Platform)

	issueFields := make([]string, len(sheet.Issues))
	for i, is := range sheet.Issues {
		issueFields[i] = is.Field
	}
	assert.Equal(t, []string{"Quantity", "Quantity", "Price", "Event Name", "Platform", "Date"}, issueFields)
	assert.Equal(t, 5, sheet.Issues[0].Line, "line numbers count the blank line")

	last := sheet.Rows[2]
	assert.Equal(t, "1000", last.Price.String())
	assert.Equal(t, time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC), last.Date)
}

func TestParseImportMissingColumns(t *testing.T) {
	_, err := ParseImport(strings.NewReader("Event Name,Quantity\nx,1\n"), time.UTC)
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "Price")

	_, err = ParseImport(strings.NewReader(""), time.UTC)
	assert.ErrorIs(t, err, ErrEmptyFile)
}
