package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	nakamoto "github.com/carlospinto93p/NakamotoExplorer"
	"github.com/carlospinto93p/NakamotoExplorer/dataset"
	"github.com/carlospinto93p/NakamotoExplorer/grafana"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slog"
)

var (
	build string // set with -ldflags "-X main.build=..."
)

func main() {
	envFile := flag.String("env", ".env", "env file with the NAKAMOTO_* settings")
	dataFolder := flag.String("data", "", "data folder (overrides NAKAMOTO_DATA_FOLDER)")
	watch := flag.Bool("watch", false, "re-run a simulation when its rule_set.yml changes")
	serve := flag.String("serve", "", "serve the results as a grafana json datasource on this address, eg :8080")
	verbose := flag.Bool("v", false, "debug logs")
	flag.Parse()

	settings, err := nakamoto.LoadSettings(*envFile)
	if err != nil {
		slog.Error("invalid settings", "error", err)
		os.Exit(1)
	}
	nakamoto.SetDefaultSettings(settings)
	if *dataFolder != "" {
		settings.DataFolder = *dataFolder
	}

	level := slog.LevelInfo
	if *verbose || settings.Debug {
		level = slog.LevelDebug
	}
	stdout := nakamoto.NewLogger(os.Stderr, level)
	stdout.Info("starting", "build", build, "data", settings.DataFolder)

	if err := nakamoto.RegisterViews(); err != nil {
		stdout.Error("can't register views", "error", err)
		os.Exit(1)
	}

	entries, err := dataset.Load(settings.DataFolder)
	if err != nil {
		stdout.Error("can't load the data folder", "error", err)
		os.Exit(1)
	}
	stdout.Info("data loaded", "entries", len(entries),
		"price_lists", dataset.MaxPriceList(entries), "rule_sets", dataset.MaxRuleSet(entries))

	service := grafana.NewService(stdout)
	for _, entry := range entries {
		run(stdout, service, entry)
	}

	if *serve != "" {
		go func() {
			stdout.Info("listening", "address", *serve)
			if err := http.ListenAndServe(*serve, service.Handler()); err != nil {
				stdout.Error("can't start web server", "error", err)
				os.Exit(1)
			}
		}()
	}

	if !*watch {
		if *serve != "" {
			waitSignal(stdout)
		}
		return
	}
	if err := watchRuleSets(stdout, service, entries); err != nil {
		stdout.Error("watcher failed", "error", err)
		os.Exit(1)
	}
}

// run simulates the entry rule set on a fresh copy of its price list and
// publishes the resolved series.
func run(stdout *slog.Logger, service *grafana.Service, entry dataset.Entry) {
	logger := stdout.With("price_list", entry.Identifier.PriceList, "rule_set", entry.Identifier.RuleSet)

	historial := entry.SimulationDF.Rebuild()
	simulator := nakamoto.Simulator{RuleSet: entry.RuleSet, Logger: logger}
	result, err := simulator.Run(historial)
	if err != nil {
		logger.Error("simulation failed", "error", err)
		return
	}
	service.Set(entry.Identifier, historial)

	for _, e := range result.Ledger.Entries() {
		logger.Debug("operation", "entry", e.String())
	}
	logger.Info("result",
		"initial_value", result.InitialValue,
		"final_value", result.FinalValue,
		"pl", result.PL,
		"commission", result.Ledger.TotalCommission())
	logger.Info("stored metrics", dataset.Attrs(entry.Metrics)...)
	logger.Debug("historial kwargs", dataset.Attrs(entry.HistorialKwargs)...)
}

func waitSignal(stdout *slog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	stdout.Info("bye")
}

func watchRuleSets(stdout *slog.Logger, service *grafana.Service, entries []dataset.Entry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	byPath := map[string]int{}
	for i, e := range entries {
		path := filepath.Clean(e.RuleSetPath())
		byPath[path] = i
		// Editors often replace the file: watch the folder, not the file
		if err := watcher.Add(e.Path); err != nil {
			return err
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	stdout.Info("watching rule sets", "count", len(byPath))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			i, found := byPath[filepath.Clean(event.Name)]
			if !found {
				continue
			}

			stdout.Info("reloading", "file", event.Name)
			ruleSet, err := dataset.LoadRuleSet(event.Name)
			if err != nil {
				stdout.Error("invalid rule set, keeping the previous one", "error", err)
				continue
			}
			entries[i].RuleSet = ruleSet
			run(stdout, service, entries[i])

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			stdout.Error("watcher error", "error", err)

		case <-sigs:
			stdout.Info("bye")
			return nil
		}
	}
}
