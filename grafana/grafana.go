// Package grafana serves simulation results as a Grafana JSON datasource
// (the /search and /query endpoints of the simple-json plugin).
package grafana

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	nakamoto "github.com/carlospinto93p/NakamotoExplorer"
	"github.com/carlospinto93p/NakamotoExplorer/dataset"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"
)

// EntriesTarget is the /search target that lists the simulations instead of
// the series.
const EntriesTarget = "entries"

// Columns are the series published for every simulation.
var Columns = []string{
	nakamoto.ColBaseQuote,
	nakamoto.ColBaseFree,
	nakamoto.ColQuoteFree,
	nakamoto.ColCommissionFree,
	nakamoto.ColPriceAccPctChange,
	nakamoto.ColQuoteValue,
	nakamoto.ColAction,
}

type TimeSerie struct {
	X []time.Time
	Y []float64
}

type SearchRequest struct {
	Target string `json:"target"`
}

type GrafanaQuery struct {
	Range   GrafanaQueryRange    `json:"range"`
	Targets []GrafanaQueryTarget `json:"targets"`
}

type GrafanaQueryRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type GrafanaQueryTarget struct {
	Target string `json:"target"`
}

type GrafanaTS struct {
	Target     string      `json:"target"`
	Datapoints [][]float64 `json:"datapoints"`
}

// EntryName is the prefix of the series of a simulation.
func EntryName(id dataset.Identifier) string {
	return fmt.Sprintf("price_list_%d/rule_set_%d", id.PriceList, id.RuleSet)
}

// Target is the name of a column of a simulation.
func Target(id dataset.Identifier, column string) string {
	return EntryName(id) + "/" + column
}

// Series extracts the Columns of h. The action serie is 1 on purchases, -1
// on sales and holds only the resolved rows.
func Series(h nakamoto.Historial) map[string]TimeSerie {
	res := map[string]TimeSerie{}
	add := func(column string, t time.Time, v float64) {
		ts := res[column]
		ts.X = append(ts.X, t)
		ts.Y = append(ts.Y, v)
		res[column] = ts
	}

	for _, r := range h {
		add(nakamoto.ColBaseQuote, r.Time, r.BaseQuote)
		add(nakamoto.ColBaseFree, r.Time, r.BaseFree)
		add(nakamoto.ColQuoteFree, r.Time, r.QuoteFree)
		add(nakamoto.ColCommissionFree, r.Time, r.CommissionFree)
		add(nakamoto.ColPriceAccPctChange, r.Time, r.PriceAccPctChange)
		add(nakamoto.ColQuoteValue, r.Time, r.QuoteValue)
		switch r.Action {
		case nakamoto.ActionPurchase:
			add(nakamoto.ColAction, r.Time, 1)
		case nakamoto.ActionSale:
			add(nakamoto.ColAction, r.Time, -1)
		}
	}
	return res
}

// Service holds the series of the last run of every simulation. It is safe
// for concurrent use: the watcher updates it while the server reads it.
type Service struct {
	Logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]bool
	values  map[string]TimeSerie
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Logger:  logger,
		entries: map[string]bool{},
		values:  map[string]TimeSerie{},
	}
}

// Set replaces the series of a simulation.
func (s *Service) Set(id dataset.Identifier, h nakamoto.Historial) {
	series := Series(h)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[EntryName(id)] = true
	for _, column := range Columns {
		delete(s.values, Target(id, column))
	}
	for column, ts := range series {
		s.values[Target(id, column)] = ts
	}
}

// Handler routes the datasource endpoints.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.Hello)
	r.Post("/search", s.Search)
	r.Post("/query", s.Query)
	return r
}

func (s *Service) Hello(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "version 1")
}

// Search returns a JSON array with the available series, or the simulations
// if the target is EntriesTarget.
func (s *Service) Search(w http.ResponseWriter, r *http.Request) {
	query := SearchRequest{}
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		query = SearchRequest{Target: ""}
	}

	s.mu.RLock()
	results := []string{}
	switch query.Target {
	case EntriesTarget:
		for k := range s.entries {
			results = append(results, k)
		}
	default:
		for k := range s.values {
			results = append(results, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(results)
	writeJSON(w, results)
}

// Query returns the datapoints of the targets in the requested range as
// [value, epoch millis] pairs.
func (s *Service) Query(w http.ResponseWriter, r *http.Request) {
	query := GrafanaQuery{}
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.Logger.Error("invalid /query", "error", err)
		http.Error(w, "invalid query", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := []GrafanaTS{}
	for _, target := range query.Targets {
		ts, exists := s.values[target.Target]
		if !exists {
			s.Logger.Warn("serie not found", "target", target.Target)
			continue
		}

		var datapoints [][]float64
		for i, inst := range ts.X {
			if inst.Before(query.Range.From) || inst.After(query.Range.To) {
				continue
			}
			datapoints = append(datapoints, []float64{ts.Y[i], float64(inst.UnixMilli())})
		}

		if len(datapoints) > 0 {
			metrics = append(metrics, GrafanaTS{Target: target.Target, Datapoints: datapoints})
		}
	}
	writeJSON(w, metrics)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
