// Package dataset loads an explorer data folder:
//
//	<folder>/price_list_<N>/historial_kwargs.yml
//	<folder>/price_list_<N>/rule_set_<M>/rule_set.yml
//	<folder>/price_list_<N>/rule_set_<M>/metrics.yml
//	<folder>/price_list_<N>/rule_set_<M>/simulation_df.csv
package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	nakamoto "github.com/carlospinto93p/NakamotoExplorer"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	HistorialKwargsFile = "historial_kwargs.yml"
	RuleSetFile         = "rule_set.yml"
	MetricsFile         = "metrics.yml"
	SimulationFile      = "simulation_df.csv"
)

var ErrEntryNotFound = errors.New("dataset entry not found")

type Identifier struct {
	PriceList int `yaml:"price_list"`
	RuleSet   int `yaml:"rule_set"`
}

// Entry is a simulation of one rule set over one price list.
type Entry struct {
	Identifier      Identifier
	SimulationDF    nakamoto.Historial
	Metrics         map[string]interface{}
	RuleSet         nakamoto.RuleSet
	HistorialKwargs map[string]interface{}
	// Path is the rule set folder
	Path string
}

func (e Entry) RuleSetPath() string {
	return filepath.Join(e.Path, RuleSetFile)
}

// Load reads every entry of folder, sorted by price list then rule set.
func Load(folder string) ([]Entry, error) {
	priceLists, err := subfolders(folder)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, priceListFolder := range priceLists {
		pricesPath := filepath.Join(folder, priceListFolder)
		priceListIdx, err := folderIndex(priceListFolder)
		if err != nil {
			return nil, err
		}

		var kwargs map[string]interface{}
		if err := loadYAML(filepath.Join(pricesPath, HistorialKwargsFile), &kwargs); err != nil {
			return nil, err
		}

		ruleSets, err := subfolders(pricesPath)
		if err != nil {
			return nil, err
		}
		for _, ruleSetFolder := range ruleSets {
			ruleSetIdx, err := folderIndex(ruleSetFolder)
			if err != nil {
				return nil, err
			}
			entry, err := LoadEntry(filepath.Join(pricesPath, ruleSetFolder))
			if err != nil {
				return nil, err
			}
			entry.HistorialKwargs = kwargs
			entry.Identifier = Identifier{PriceList: priceListIdx, RuleSet: ruleSetIdx}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Identifier, entries[j].Identifier
		if a.PriceList != b.PriceList {
			return a.PriceList < b.PriceList
		}
		return a.RuleSet < b.RuleSet
	})
	return entries, nil
}

// LoadEntry reads the files of a single rule set folder.
func LoadEntry(path string) (Entry, error) {
	ruleSet, err := LoadRuleSet(filepath.Join(path, RuleSetFile))
	if err != nil {
		return Entry{}, err
	}

	var metrics map[string]interface{}
	if err := loadYAML(filepath.Join(path, MetricsFile), &metrics); err != nil {
		return Entry{}, err
	}

	simulationPath := filepath.Join(path, SimulationFile)
	f, err := os.Open(simulationPath)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "opening %s", simulationPath)
	}
	defer func() { _ = f.Close() }()

	df, err := nakamoto.ReadHistorialCSV(f)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "reading %s", simulationPath)
	}

	return Entry{
		SimulationDF: df,
		Metrics:      metrics,
		RuleSet:      ruleSet,
		Path:         path,
	}, nil
}

// LoadRuleSet decodes a rule_set.yml file.
func LoadRuleSet(path string) (nakamoto.RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nakamoto.RuleSet{}, errors.Wrapf(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	rs, err := nakamoto.ReadRuleSetYAML(f)
	if err != nil {
		return nakamoto.RuleSet{}, errors.Wrapf(err, "loading %s", path)
	}
	return rs, nil
}

// Find returns the position of the entry with the given identifiers.
func Find(entries []Entry, priceList, ruleSet int) (int, error) {
	for i, e := range entries {
		if e.Identifier.PriceList == priceList && e.Identifier.RuleSet == ruleSet {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrEntryNotFound, "price list %d, rule set %d", priceList, ruleSet)
}

func MaxPriceList(entries []Entry) int {
	highest := 0
	for _, e := range entries {
		if e.Identifier.PriceList > highest {
			highest = e.Identifier.PriceList
		}
	}
	return highest
}

func MaxRuleSet(entries []Entry) int {
	highest := 0
	for _, e := range entries {
		if e.Identifier.RuleSet > highest {
			highest = e.Identifier.RuleSet
		}
	}
	return highest
}

// Attrs flattens a stored yaml document into sorted key/value pairs, as
// expected by slog.
func Attrs(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		attrs = append(attrs, k, m[k])
	}
	return attrs
}

func loadYAML(path string, out interface{}) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := yaml.Unmarshal(contents, out); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}

func subfolders(folder string) ([]string, error) {
	items, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", folder)
	}
	var res []string
	for _, item := range items {
		if item.IsDir() {
			res = append(res, item.Name())
		}
	}
	return res, nil
}

// folderIndex parses the number after the last underscore: "rule_set_3" is 3.
func folderIndex(name string) (int, error) {
	parts := strings.Split(name, "_")
	idx, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, errors.Wrapf(err, "folder %s has no numeric suffix", name)
	}
	return idx, nil
}
