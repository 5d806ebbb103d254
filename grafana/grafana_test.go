package grafana

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	nakamoto "github.com/carlospinto93p/NakamotoExplorer"
	"github.com/carlospinto93p/NakamotoExplorer/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

var t0 = time.Date(2022, 1, 26, 10, 0, 0, 0, time.UTC)

func testService(t *testing.T) *Service {
	t.Helper()
	prices := []nakamoto.Price{
		{Time: t0, BaseQuote: 100, BaseCommission: 1},
		{Time: t0.Add(time.Minute), BaseQuote: 110, BaseCommission: 1},
		{Time: t0.Add(2 * time.Minute), BaseQuote: 120, BaseCommission: 1},
	}
	h := nakamoto.NewHistorial(prices, nakamoto.Balances{Base: 10, Quote: 100, Commission: 1})
	row, err := nakamoto.SimulateSale(h[1], 1, 0.001, true)
	require.NoError(t, err)
	h[1] = *row
	h.Propagate(1)

	s := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Set(dataset.Identifier{PriceList: 1, RuleSet: 2}, h)
	return s
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSeries(t *testing.T) {
	s := testService(t)

	ts := s.values["price_list_1/rule_set_2/action"]
	require.Len(t, ts.Y, 1)
	assert.Equal(t, -1.0, ts.Y[0])
	assert.True(t, ts.X[0].Equal(t0.Add(time.Minute)))

	assert.Equal(t, []float64{1100, 1200, 1290}, s.values["price_list_1/rule_set_2/quote_value"].Y)
}

func TestSearch(t *testing.T) {
	h := testService(t).Handler()

	rec := post(t, h, "/search", `{"target": "entries"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, []string{"price_list_1/rule_set_2"}, entries)

	rec = post(t, h, "/search", `not json`)
	var series []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Len(t, series, len(Columns))
	assert.Contains(t, series, "price_list_1/rule_set_2/base-quote")
}

func TestQuery(t *testing.T) {
	h := testService(t).Handler()

	body := `{
		"range": {"from": "2022-01-26T10:00:30Z", "to": "2022-01-26T11:00:00Z"},
		"targets": [{"target": "price_list_1/rule_set_2/base-quote"}, {"target": "missing"}]
	}`
	rec := post(t, h, "/query", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []GrafanaTS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "price_list_1/rule_set_2/base-quote", got[0].Target)
	assert.Equal(t, [][]float64{
		{110, float64(t0.Add(time.Minute).UnixMilli())},
		{120, float64(t0.Add(2 * time.Minute).UnixMilli())},
	}, got[0].Datapoints)

	rec = post(t, h, "/query", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHello(t *testing.T) {
	rec := httptest.NewRecorder()
	testService(t).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "version 1", rec.Body.String())
}
