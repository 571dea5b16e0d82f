package timing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// stubScorer aggregates by sum and reports the first max, like the default
// keyword scorer, but with no matrix.
type stubScorer struct{}

func (stubScorer) ScoreWords(words []string) (classify.ScoreVector, bool) { return nil, false }
func (stubScorer) Aggregate(scores []classify.ScoreVector) classify.ScoreVector {
	return classify.Aggregate(scores, 3)
}
func (stubScorer) IndexOfMax(v classify.ScoreVector) int { return classify.IndexOfMax(v) }
func (stubScorer) Categories() []string                  { return []string{"a", "b", "c"} }

// recordingLearner captures symbols fed through Update.
type recordingLearner struct {
	symbols []string
	fail    error
}

func (l *recordingLearner) Init() []byte { return []byte("init") }
func (l *recordingLearner) Update(symbol string, model []byte) ([]byte, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.symbols = append(l.symbols, symbol)
	return append([]byte(nil), append(model, 'u')...), nil
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestSymbolBands(t *testing.T) {
	const now = 10_000

	cases := []struct {
		name  string
		prep  func(st *state.BehavioralState)
		want  string
	}{
		{
			"empty history, stale idle stop",
			func(st *state.BehavioralState) {},
			"var:lo|rec:hi|search:0|shop:0|buy:0",
		},
		{
			"dominant topic outweighs depth",
			func(st *state.BehavioralState) {
				// depth 2, dominant 10 → ratio 0.2 ≤ 1.1 → low variance
				st.PushPageScores(classify.ScoreVector{5, 0, 0})
				st.PushPageScores(classify.ScoreVector{5, 1, 0})
			},
			"var:lo|rec:hi|search:0|shop:0|buy:0",
		},
		{
			"weak dominant topic",
			func(st *state.BehavioralState) {
				// depth 2, dominant 1 → ratio 2 > 1.1 → high variance
				st.PushPageScores(classify.ScoreVector{0.5, 0, 0})
				st.PushPageScores(classify.ScoreVector{0.5, 0.2, 0})
			},
			"var:hi|rec:hi|search:0|shop:0|buy:0",
		},
		{
			"zero dominant score",
			func(st *state.BehavioralState) {
				st.PushPageScores(classify.ScoreVector{0, 0, 0})
			},
			"var:hi|rec:hi|search:0|shop:0|buy:0",
		},
		{
			"recent idle stop",
			func(st *state.BehavioralState) {
				st.SetLastIdleStop(now - 59)
			},
			"var:lo|rec:lo|search:0|shop:0|buy:0",
		},
		{
			"idle stop exactly at threshold is stale",
			func(st *state.BehavioralState) {
				st.SetLastIdleStop(now - 60)
			},
			"var:lo|rec:hi|search:0|shop:0|buy:0",
		},
		{
			"activity flags",
			func(st *state.BehavioralState) {
				st.SetSearchActivity(true, now)
				st.SetShopActivity(true)
				st.SetBuyActivity(true)
			},
			"var:lo|rec:hi|search:1|shop:1|buy:1",
		},
	}

	for _, c := range cases {
		st := state.New(true)
		c.prep(st)
		a := NewAdapter(&recordingLearner{}, stubScorer{}).WithClock(fixedClock(now))
		if got := a.Symbol(st); got != c.want {
			t.Fatalf("%s: symbol = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestObserveInitializesMissingModel(t *testing.T) {
	st := state.New(true)
	l := &recordingLearner{}
	a := NewAdapter(l, stubScorer{}).WithClock(fixedClock(10_000))

	if err := a.Observe(st); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(l.symbols) != 1 {
		t.Fatalf("update calls = %d, want 1", len(l.symbols))
	}
	if string(st.TimingModel) != "initu" {
		t.Fatalf("persisted blob = %q", st.TimingModel)
	}
}

func TestObserveReusesExistingModel(t *testing.T) {
	st := state.New(true)
	st.SetTimingModel([]byte("prior"))
	l := &recordingLearner{}
	a := NewAdapter(l, stubScorer{}).WithClock(fixedClock(10_000))

	if err := a.Observe(st); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if string(st.TimingModel) != "prioru" {
		t.Fatalf("persisted blob = %q, want prior blob threaded through", st.TimingModel)
	}
}

func TestObserveNoOpWhileDisabled(t *testing.T) {
	st := state.New(false)
	l := &recordingLearner{}
	a := NewAdapter(l, stubScorer{})

	if err := a.Observe(st); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(l.symbols) != 0 || st.TimingModel != nil {
		t.Fatal("disabled profile must not touch the model")
	}
}

func TestObserveKeepsPriorBlobOnUpdateError(t *testing.T) {
	st := state.New(true)
	st.SetTimingModel([]byte("prior"))
	l := &recordingLearner{fail: errors.New("service down")}
	a := NewAdapter(l, stubScorer{}).WithClock(fixedClock(10_000))

	if err := a.Observe(st); err == nil {
		t.Fatal("expected update error to surface")
	}
	if string(st.TimingModel) != "prior" {
		t.Fatalf("blob changed on failed update: %q", st.TimingModel)
	}
}

func TestCountLearnerAccumulates(t *testing.T) {
	var l CountLearner
	blob := l.Init()

	var err error
	for i := 0; i < 3; i++ {
		blob, err = l.Update("var:lo|rec:hi|search:0|shop:0|buy:0", blob)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	blob, err = l.Update("var:hi|rec:lo|search:1|shop:0|buy:0", blob)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	var m countModel
	if err := json.Unmarshal(blob, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Total != 4 {
		t.Fatalf("total = %d, want 4", m.Total)
	}
	if m.Counts["var:lo|rec:hi|search:0|shop:0|buy:0"] != 3 {
		t.Fatalf("counts = %+v", m.Counts)
	}
}

func TestCountLearnerRejectsCorruptBlob(t *testing.T) {
	var l CountLearner
	if _, err := l.Update("sym", []byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
