package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to adlocal.db")
	events := flag.Int("events", 0, "show N most recent mirrored reporting events")
	diags := flag.Int("diags", 0, "show N most recent diagnostics")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/adlocal.db [--events N] [--diags N] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *events > 0:
		err = runEventsMode(store, *events, *jsonOut)
	case *diags > 0:
		err = runDiagsMode(store, *diags, *jsonOut)
	default:
		err = runProfileMode(store, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region profile-mode

type profileSummary struct {
	AdEnabled      bool     `json:"ad_enabled"`
	AdUUID         string   `json:"ad_uuid,omitempty"`
	Locale         string   `json:"locale,omitempty"`
	CurrentSSID    string   `json:"current_ssid,omitempty"`
	PageScores     int      `json:"page_scores"`
	Impressions    int      `json:"impressions"`
	SeenAds        []string `json:"seen_ads,omitempty"`
	QueuedEvents   int      `json:"queued_events"`
	QueuedSurveys  int      `json:"queued_surveys"`
	Places         int      `json:"places"`
	HasTimingModel bool     `json:"has_timing_model"`
	LastAdTime     int64    `json:"last_ad_time,omitempty"`
}

func runProfileMode(store *state.Store, jsonOut bool) error {
	rec, err := store.LoadSnapshot()
	if err != nil {
		return err
	}

	out := profileSummary{
		AdEnabled:      rec.AdEnabled,
		AdUUID:         rec.AdUUID,
		Locale:         rec.Locale,
		CurrentSSID:    rec.CurrentSSID,
		PageScores:     rec.PageScores.Len(),
		Impressions:    rec.AdsShown.Len(),
		QueuedEvents:   len(rec.Events),
		QueuedSurveys:  len(rec.Surveys),
		Places:         len(rec.Places),
		HasTimingModel: rec.TimingModel != nil,
		LastAdTime:     rec.LastAdTime,
	}
	for id := range rec.AdSeen {
		out.SeenAds = append(out.SeenAds, id)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Ad enabled:    %v\n", out.AdEnabled)
	fmt.Printf("Ad UUID:       %s\n", out.AdUUID)
	fmt.Printf("Locale:        %s\n", out.Locale)
	fmt.Printf("Current SSID:  %s\n", out.CurrentSSID)
	fmt.Printf("Page scores:   %d\n", out.PageScores)
	fmt.Printf("Impressions:   %d\n", out.Impressions)
	fmt.Printf("Seen ads:      %d\n", len(out.SeenAds))
	fmt.Printf("Queued events: %d\n", out.QueuedEvents)
	fmt.Printf("Surveys:       %d\n", out.QueuedSurveys)
	fmt.Printf("Places:        %d\n", out.Places)
	fmt.Printf("Timing model:  %v\n", out.HasTimingModel)
	return nil
}

// #endregion profile-mode

// #region events-mode

func runEventsMode(store *state.Store, limit int, jsonOut bool) error {
	events, err := store.ListMirroredEvents(limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no mirrored events")
		return nil
	}

	if jsonOut {
		return printJSON(events)
	}

	fmt.Printf("%-20s  %-15s  %-12s  %-10s  %s\n", "Stamp", "Kind", "Ad", "Outcome", "CID")
	for _, ev := range events {
		fmt.Printf("%-20s  %-15s  %-12s  %-10s  %s\n",
			ev.Stamp, ev.Kind, ev.AdID, ev.Outcome, shortID(ev.CorrelationID))
	}
	return nil
}

// #endregion events-mode

// #region diags-mode

func runDiagsMode(store *state.Store, limit int, jsonOut bool) error {
	diags, err := store.ListDiagnostics(limit)
	if err != nil {
		return err
	}
	if len(diags) == 0 {
		fmt.Fprintln(os.Stderr, "no diagnostics")
		return nil
	}

	if jsonOut {
		return printJSON(diags)
	}

	for _, d := range diags {
		fmt.Printf("%s  [%s] %s", d.CreatedAt.Format("2006-01-02T15:04:05Z"), d.Source, d.Message)
		if d.Detail != "" {
			fmt.Printf("  %s", d.Detail)
		}
		fmt.Println()
	}
	return nil
}

// #endregion diags-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
