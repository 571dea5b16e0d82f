package reporting

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

func tickingClock(start int64) func() time.Time {
	t := start
	return func() time.Time {
		t++
		return time.Unix(t, 0)
	}
}

func TestTranslateOutcome(t *testing.T) {
	cases := []struct {
		raw, want string
		ok        bool
	}{
		{"clicked", "clicked", true},
		{"closed", "dismissed", true},
		{"ignored", "timeout", true},
		{"something", "", false},
	}
	for _, c := range cases {
		got, ok := TranslateOutcome(c.raw)
		if got != c.want || ok != c.ok {
			t.Fatalf("TranslateOutcome(%q) = %q, %v; want %q, %v", c.raw, got, ok, c.want, c.ok)
		}
	}
}

func TestMarksSeen(t *testing.T) {
	if !MarksSeen("clicked") || !MarksSeen("dismissed") {
		t.Fatal("click and dismiss mark an ad seen")
	}
	if MarksSeen("timeout") {
		t.Fatal("timeout must not mark an ad seen")
	}
}

func TestRecordStampsAndAppends(t *testing.T) {
	st := state.New(true)
	r := NewRecorder().WithClock(tickingClock(1_000_000))

	if !r.Record(st, TabLoad()) {
		t.Fatal("record should append")
	}
	if len(st.Events) != 1 {
		t.Fatalf("queue len = %d, want 1", len(st.Events))
	}
	if st.Events[0].Stamp == "" {
		t.Fatal("stamp not applied")
	}
}

func TestRecordDedupsQueueTail(t *testing.T) {
	st := state.New(true)
	r := NewRecorder().WithClock(tickingClock(1_000_000))

	// Two structurally identical focus events differing only in stamp.
	if !r.Record(st, TabFocus()) {
		t.Fatal("first focus should append")
	}
	if r.Record(st, TabFocus()) {
		t.Fatal("identical tail event should be suppressed")
	}
	if len(st.Events) != 1 {
		t.Fatalf("queue len = %d, want 1", len(st.Events))
	}

	// A different event appends fine.
	if !r.Record(st, TabBlur()) {
		t.Fatal("different event should append")
	}
	if len(st.Events) != 2 {
		t.Fatalf("queue len = %d, want 2", len(st.Events))
	}

	// And the same focus event is no longer the tail, so it appends again.
	if !r.Record(st, TabFocus()) {
		t.Fatal("focus after blur should append")
	}
	if len(st.Events) != 3 {
		t.Fatalf("queue len = %d, want 3", len(st.Events))
	}
}

func TestRecordDedupIgnoresCorrelationID(t *testing.T) {
	st := state.New(true)
	r := NewRecorder().WithClock(tickingClock(1_000_000))

	r.Record(st, TabFocus())
	EnsureCorrelation(st)

	if r.Record(st, TabFocus()) {
		t.Fatal("correlation id on the tail must not defeat dedup")
	}
}

func TestRecordDistinguishesPayloads(t *testing.T) {
	st := state.New(true)
	r := NewRecorder().WithClock(tickingClock(1_000_000))

	r.Record(st, NotificationOutcome("ad-1", "clicked"))
	if !r.Record(st, NotificationOutcome("ad-1", "dismissed")) {
		t.Fatal("different outcome is a different record")
	}
	if !r.Record(st, NotificationOutcome("ad-2", "dismissed")) {
		t.Fatal("different ad id is a different record")
	}
}

func TestRecordNoOpWhileDisabled(t *testing.T) {
	st := state.New(false)
	r := NewRecorder()

	if r.Record(st, TabLoad()) {
		t.Fatal("disabled profile must not record")
	}
	if len(st.Events) != 0 {
		t.Fatal("queue mutated while disabled")
	}
}

func TestRecordMirrors(t *testing.T) {
	st := state.New(true)
	var mirrored []state.Event
	r := NewRecorder().WithClock(tickingClock(1_000_000)).WithMirror(func(ev state.Event) error {
		mirrored = append(mirrored, ev)
		return nil
	})

	r.Record(st, TabLoad())
	r.Record(st, TabLoad()) // suppressed: must not reach the mirror

	if len(mirrored) != 1 {
		t.Fatalf("mirrored = %d, want 1", len(mirrored))
	}
}

func TestSettingsDiff(t *testing.T) {
	old := map[string]string{"adsPerHour": "3", "locale": "en-US", "mode": "normal"}
	new := map[string]string{"adsPerHour": "5", "locale": "en-US"}

	diff := SettingsDiff(old, new)
	if len(diff) != 2 {
		t.Fatalf("diff = %+v, want 2 entries", diff)
	}
	if diff["adsPerHour"] != "5" {
		t.Fatalf("changed key missing: %+v", diff)
	}
	if v, ok := diff["mode"]; !ok || v != "" {
		t.Fatalf("removed key should appear empty: %+v", diff)
	}
}

func TestEnsureCorrelation(t *testing.T) {
	st := state.New(true)
	if EnsureCorrelation(st) != "" {
		t.Fatal("empty queue has no correlation id")
	}

	r := NewRecorder().WithClock(tickingClock(1_000_000))
	r.Record(st, TabLoad())

	cid := EnsureCorrelation(st)
	if cid == "" {
		t.Fatal("correlation id should be assigned")
	}
	if again := EnsureCorrelation(st); again != cid {
		t.Fatalf("correlation id regenerated: %q -> %q", cid, again)
	}
}

func TestMergeSurveysFiltersAvailable(t *testing.T) {
	st := state.New(true)
	n := MergeSurveys(st, []state.Survey{
		{ID: "sv-1", Status: state.SurveyAvailable},
		{ID: "sv-2", Status: state.SurveyDisplay},
	}, false)

	if n != 1 || len(st.Surveys) != 1 || st.Surveys[0].ID != "sv-1" {
		t.Fatalf("merged %d, surveys = %+v", n, st.Surveys)
	}
}

func TestMergeSurveysVerificationExcludesInteracted(t *testing.T) {
	st := state.New(true)
	st.UpsertSurvey(state.Survey{ID: "sv-1", Status: state.SurveyDisplay, StatusAt: "2026-01-01T00:00:00Z"})

	// Verification mode: the already-displayed survey must not re-surface.
	n := MergeSurveys(st, []state.Survey{{ID: "sv-1", Status: state.SurveyAvailable}}, true)
	if n != 0 {
		t.Fatalf("merged %d, want 0", n)
	}
	if st.Surveys[0].Status != state.SurveyDisplay {
		t.Fatalf("status overwritten: %+v", st.Surveys[0])
	}

	// Outside verification mode the fresh definition wins.
	n = MergeSurveys(st, []state.Survey{{ID: "sv-1", Status: state.SurveyAvailable}}, false)
	if n != 1 || st.Surveys[0].Status != state.SurveyAvailable {
		t.Fatalf("merged %d, surveys = %+v", n, st.Surveys)
	}
}

func TestMergeSurveysNoOpWhileDisabled(t *testing.T) {
	st := state.New(false)
	if n := MergeSurveys(st, []state.Survey{{ID: "sv-1", Status: state.SurveyAvailable}}, false); n != 0 {
		t.Fatalf("merged %d while disabled", n)
	}
}
