package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/catalog"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/notify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/reporting"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/selector"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

func testScorer() classify.Scorer {
	return classify.NewKeywordScorer(classify.Matrix{
		Categories: []string{"sports-rugby", "tech"},
		Weights: map[string]map[string]float64{
			"sports-rugby": {"rugby": 1, "scrum": 1},
			"tech":         {"cpu": 1},
		},
	}, 1, 0)
}

func testBundle() *catalog.Bundle {
	return &catalog.Bundle{Categories: map[string][]catalog.Ad{
		"sports": {{ID: "ad-1", Text: "match tickets", URL: "https://example.com/1", Sponsor: "acme"}},
	}}
}

// surveyTransport serves a fixed survey list and records upload calls.
type surveyTransport struct {
	surveys []state.Survey
	err     error
	locales []string
}

func (t *surveyTransport) UploadReport(ctx context.Context, adUUID string, events []state.Event) (reporting.UploadAck, error) {
	return reporting.UploadAck{}, errors.New("not under test")
}

func (t *surveyTransport) DownloadSurveys(ctx context.Context, locale string) ([]state.Survey, error) {
	t.locales = append(t.locales, locale)
	return t.surveys, t.err
}

func testEngine(t *testing.T, cfg Config) (*Engine, *notify.CaptureNotifier) {
	t.Helper()
	sink := &notify.CaptureNotifier{}
	cfg.Notifier = sink
	if cfg.Scorer == nil {
		cfg.Scorer = testScorer()
	}
	if cfg.Bundle == nil {
		cfg.Bundle = testBundle()
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e, sink
}

func TestPageLoadedServesAdEndToEnd(t *testing.T) {
	e, sink := testEngine(t, Config{})

	e.TabFocused()
	out := e.PageLoaded(strings.Fields("rugby scrum rugby"))
	if !out.Served || out.Ad == nil || out.Ad.ID != "ad-1" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(sink.Shown) != 1 || sink.Shown[0].ID != "ad-1" || sink.Shown[0].Sponsor != "acme" {
		t.Fatalf("notifications = %+v", sink.Shown)
	}

	st := e.Profile()
	if st.AdsShown.Len() != 1 {
		t.Fatalf("impressions = %d", st.AdsShown.Len())
	}
	last, _ := st.LastEvent()
	if last.Kind != state.EventNotificationShown || last.AdID != "ad-1" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestPageLoadedBackgroundDoesNotServe(t *testing.T) {
	e, sink := testEngine(t, Config{})

	out := e.PageLoaded(strings.Fields("rugby"))
	if out.Served || out.Reason != selector.ReasonNotForeground {
		t.Fatalf("outcome = %+v", out)
	}
	if len(sink.Shown) != 0 {
		t.Fatalf("notifications = %+v", sink.Shown)
	}
	// The load itself is still scored and recorded.
	st := e.Profile()
	if st.PageScores.Len() != 1 {
		t.Fatalf("page scores = %d", st.PageScores.Len())
	}
}

func TestNotificationOutcomeMarksSeenOnDeliberateFeedback(t *testing.T) {
	e, _ := testEngine(t, Config{})

	e.NotificationOutcome("ad-1", "clicked")
	st := e.Profile()
	if !st.AdSeen["ad-1"] {
		t.Fatal("clicked should mark the ad seen")
	}
	last, _ := st.LastEvent()
	if last.Kind != state.EventNotificationOutcome || last.Outcome != "clicked" {
		t.Fatalf("last event = %+v", last)
	}

	e.NotificationOutcome("ad-2", "ignored")
	st = e.Profile()
	if st.AdSeen["ad-2"] {
		t.Fatal("timeout must not mark the ad seen")
	}
	last, _ = st.LastEvent()
	if last.Outcome != "timeout" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestNotificationOutcomeUnknownRawIsDropped(t *testing.T) {
	e, _ := testEngine(t, Config{})

	before := len(e.Profile().Events)
	e.NotificationOutcome("ad-1", "swiped")
	if len(e.Profile().Events) != before {
		t.Fatal("unknown outcome must not queue a record")
	}
}

func TestKillSwitchDisablesEntryPoints(t *testing.T) {
	t.Setenv("ADLOCAL_ENABLED", "false")
	e, sink := testEngine(t, Config{})

	if e.Enabled() {
		t.Fatal("kill switch should report disabled")
	}
	e.TabFocused()
	out := e.PageLoaded(strings.Fields("rugby"))
	if out.Served || out.Reason != selector.ReasonDisabled {
		t.Fatalf("outcome = %+v", out)
	}
	if len(sink.Shown) != 0 {
		t.Fatalf("notifications = %+v", sink.Shown)
	}
}

func TestSettingsDisableStopsServingAndRecordsDiff(t *testing.T) {
	e, _ := testEngine(t, Config{Settings: StaticSettings{KeyEnabled: "true"}})

	e.SettingsChanged(StaticSettings{KeyEnabled: "false"})
	st := e.Profile()
	if st.AdEnabled {
		t.Fatal("profile should be disabled")
	}

	// The flip itself is recorded before the gate closes.
	var found bool
	for _, ev := range st.Events {
		if ev.Kind == state.EventSettingsChange && ev.Settings[KeyEnabled] == "false" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no settings event in queue: %+v", st.Events)
	}

	e.TabFocused()
	out := e.PageLoaded(strings.Fields("rugby"))
	if out.Served || out.Reason != selector.ReasonDisabled {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSettingsReEnableRestoresAdUUID(t *testing.T) {
	e, _ := testEngine(t, Config{Settings: StaticSettings{KeyEnabled: "false"}})

	if e.Profile().AdUUID != "" {
		t.Fatal("disabled profile should not carry an AdUUID")
	}
	e.SettingsChanged(StaticSettings{KeyEnabled: "true"})
	if e.Profile().AdUUID == "" {
		t.Fatal("enabling should establish the AdUUID")
	}
}

func TestEraseHistoryKeepsQueueRotatesUUID(t *testing.T) {
	e, _ := testEngine(t, Config{})

	e.TabFocused()
	e.PageLoaded(strings.Fields("rugby"))
	st := e.Profile()
	oldUUID := st.AdUUID
	queued := len(st.Events)
	if queued == 0 || st.PageScores.Len() == 0 {
		t.Fatalf("setup: events=%d scores=%d", queued, st.PageScores.Len())
	}

	e.EraseHistory()
	st = e.Profile()
	if st.PageScores.Len() != 0 || st.AdsShown.Len() != 0 || len(st.AdSeen) != 0 {
		t.Fatal("behavioral record should be cleared")
	}
	if len(st.Events) != queued {
		t.Fatalf("queue len = %d, want %d", len(st.Events), queued)
	}
	if st.AdUUID == "" || st.AdUUID == oldUUID {
		t.Fatalf("AdUUID = %q, want fresh identifier", st.AdUUID)
	}
}

func TestPersistenceRoundTripThroughStore(t *testing.T) {
	store, err := state.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	e, _ := testEngine(t, Config{Store: store})
	e.TabFocused()
	e.PageLoaded(strings.Fields("rugby"))
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	loaded, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.AdUUID != e.Profile().AdUUID {
		t.Fatalf("AdUUID mismatch: %q vs %q", loaded.AdUUID, e.Profile().AdUUID)
	}
	if loaded.PageScores.Len() != 1 || loaded.AdsShown.Len() != 1 {
		t.Fatalf("loaded scores=%d impressions=%d", loaded.PageScores.Len(), loaded.AdsShown.Len())
	}
}

func TestPruneThroughAlsoPrunesMirror(t *testing.T) {
	store, err := state.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	e, _ := testEngine(t, Config{Store: store})
	e.TabFocused()
	e.TabBlurred()
	st := e.Profile()
	if len(st.Events) == 0 {
		t.Fatal("setup: no events queued")
	}
	watermark := st.Events[len(st.Events)-1].Stamp

	e.PruneThrough(watermark)
	if len(e.Profile().Events) != 0 {
		t.Fatalf("queue not pruned: %d left", len(e.Profile().Events))
	}
	mirrored, err := store.ListMirroredEvents(10)
	if err != nil {
		t.Fatalf("ListMirroredEvents: %v", err)
	}
	if len(mirrored) != 0 {
		t.Fatalf("mirror not pruned: %+v", mirrored)
	}
}

func TestSSIDLookupFailureFallsBackToUnknown(t *testing.T) {
	store, err := state.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	e, _ := testEngine(t, Config{Store: store})
	e.SSIDChanged("", errors.New("interface down"))
	if e.Profile().CurrentSSID != "unknown" {
		t.Fatalf("ssid = %q", e.Profile().CurrentSSID)
	}

	diags, err := store.ListDiagnostics(10)
	if err != nil {
		t.Fatalf("ListDiagnostics: %v", err)
	}
	if len(diags) == 0 || diags[0].Source != "network" {
		t.Fatalf("diagnostics = %+v", diags)
	}
}

func TestRefreshSurveysMergesAvailable(t *testing.T) {
	tr := &surveyTransport{surveys: []state.Survey{
		{ID: "sv-1", Status: state.SurveyAvailable, Title: "t", TargetURL: "u"},
		{ID: "sv-2", Status: state.SurveyDisplay, Title: "t", TargetURL: "u"},
	}}
	e, _ := testEngine(t, Config{Transport: tr, Settings: StaticSettings{KeyLocale: "en-US"}})
	defer e.Shutdown()

	merged, err := e.RefreshSurveys(context.Background())
	if err != nil {
		t.Fatalf("RefreshSurveys: %v", err)
	}
	if merged != 1 {
		t.Fatalf("merged = %d, want 1", merged)
	}
	if len(tr.locales) != 1 || tr.locales[0] != "en-US" {
		t.Fatalf("locales = %v", tr.locales)
	}
	if len(e.Profile().Surveys) != 1 || e.Profile().Surveys[0].ID != "sv-1" {
		t.Fatalf("surveys = %+v", e.Profile().Surveys)
	}
}
