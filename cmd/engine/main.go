package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/catalog"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/collector"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/engine"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/notify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/reporting"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #region main
func main() {
	dbPath := envOr("ADLOCAL_DB", "adlocal.db")
	collectorAddr := os.Getenv("ADLOCAL_COLLECTOR") // empty = offline
	catalogPath := os.Getenv("ADLOCAL_CATALOG")
	matrixPath := os.Getenv("ADLOCAL_MATRIX")

	store, err := state.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	var transport reporting.Transport
	if collectorAddr != "" {
		client, err := collector.NewClient(collectorAddr)
		if err != nil {
			log.Fatalf("failed to connect to collector at %s: %v", collectorAddr, err)
		}
		defer client.Close()
		transport = client
	}

	bundle, err := loadCatalog(catalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	matrix, err := loadMatrix(matrixPath)
	if err != nil {
		log.Fatalf("matrix: %v", err)
	}

	eng, err := engine.NewEngine(engine.Config{
		Store:     store,
		Transport: transport,
		Notifier:  notify.LogNotifier{},
		Scorer:    classify.NewKeywordScorer(matrix, 3, 0),
		Bundle:    bundle,
		Settings:  engine.EnvSettings{Prefix: "ADLOCAL_"},
	})
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	if err := eng.Init(); err != nil {
		log.Fatalf("failed to init engine: %v", err)
	}
	defer eng.Shutdown()

	fmt.Println("Local ad engine ready.")
	fmt.Printf("  DB: %s | Collector: %s\n", dbPath, orDash(collectorAddr))
	fmt.Println("Paste page text, or: focus | blur | idle | click <ad> | close <ad> | ignore <ad> | surveys | erase | status | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		dispatch(eng, line)
	}
}

// #endregion main

// #region dispatch

func dispatch(eng *engine.Engine, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "focus":
		eng.TabFocused()
	case "blur":
		eng.TabBlurred()
	case "idle":
		eng.IdleStopped()
	case "click", "close", "ignore":
		if len(fields) < 2 {
			fmt.Printf("usage: %s <ad-id>\n", fields[0])
			return
		}
		raw := map[string]string{"click": "clicked", "close": "closed", "ignore": "ignored"}[fields[0]]
		eng.NotificationOutcome(fields[1], raw)
	case "surveys":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		merged, err := eng.RefreshSurveys(ctx)
		cancel()
		if err != nil {
			log.Printf("survey refresh error: %v", err)
			return
		}
		fmt.Printf("merged %d surveys\n", merged)
	case "erase":
		eng.EraseHistory()
		fmt.Println("behavioral history erased")
	case "status":
		st := eng.Profile()
		if st == nil {
			fmt.Println("engine disabled")
			return
		}
		fmt.Printf("enabled=%v uuid=%s scores=%d impressions=%d queue=%d surveys=%d\n",
			st.AdEnabled, st.AdUUID, st.PageScores.Len(), st.AdsShown.Len(), len(st.Events), len(st.Surveys))
	default:
		// Anything else is page text.
		out := eng.PageLoaded(classify.Tokenize(line))
		if !out.Served {
			fmt.Printf("no ad: %s\n", out.Reason)
		}
	}
}

// #endregion dispatch

// #region config

func loadCatalog(path string) (*catalog.Bundle, error) {
	if path == "" {
		return demoBundle(), nil
	}
	return catalog.LoadBundle(path)
}

func loadMatrix(path string) (classify.Matrix, error) {
	if path == "" {
		return demoMatrix(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return classify.Matrix{}, fmt.Errorf("read matrix %s: %w", path, err)
	}
	var m classify.Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		return classify.Matrix{}, fmt.Errorf("parse matrix %s: %w", path, err)
	}
	return m, nil
}

func demoMatrix() classify.Matrix {
	return classify.Matrix{
		Categories: []string{"sports-rugby", "tech-hardware", "travel"},
		Weights: map[string]map[string]float64{
			"sports-rugby":  {"rugby": 2, "scrum": 2, "lineout": 2, "tackle": 1, "match": 1},
			"tech-hardware": {"cpu": 2, "gpu": 2, "motherboard": 2, "benchmark": 1, "chip": 1},
			"travel":        {"flight": 2, "hotel": 2, "itinerary": 2, "beach": 1, "passport": 1},
		},
	}
}

func demoBundle() *catalog.Bundle {
	return &catalog.Bundle{Categories: map[string][]catalog.Ad{
		"sports": {
			{ID: "boots-01", Text: "New season rugby boots", URL: "https://example.com/boots", Sponsor: "Acme Sports"},
			{ID: "tickets-02", Text: "Semi-final tickets on sale", URL: "https://example.com/tickets", Sponsor: "TicketHub"},
		},
		"tech": {
			{ID: "gpu-01", Text: "Workstation GPU deals", URL: "https://example.com/gpu", Sponsor: "PartsBin"},
		},
		"travel": {
			{ID: "island-01", Text: "Island getaway packages", URL: "https://example.com/island", Sponsor: "FlyAway"},
		},
	}}
}

// #endregion config

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDash(s string) string {
	if s == "" {
		return "(offline)"
	}
	return s
}

// #endregion helpers
