package timing

// #region imports
import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #endregion

// #region thresholds

const (
	// topicVarianceThreshold splits the depth/dominant-score ratio into
	// low and high variance bands.
	topicVarianceThreshold = 1.1
	// recencySeconds splits time-since-idle-stop into low and high bands.
	recencySeconds int64 = 60
)

// #endregion thresholds

// #region learner

// Learner is the opaque online-learning timing model. The adapter never
// inspects the blob; it only feeds discretized symbols through Update and
// persists whatever comes back.
type Learner interface {
	Init() []byte
	Update(symbol string, model []byte) ([]byte, error)
}

// #endregion learner

// #region adapter

// Adapter discretizes current behavioral signals into one fixed-arity
// symbol per update cycle and applies it to the learner.
type Adapter struct {
	learner Learner
	scorer  classify.Scorer
	now     func() time.Time
}

// NewAdapter wires a learner and the scorer used for aggregate scores.
func NewAdapter(learner Learner, scorer classify.Scorer) *Adapter {
	return &Adapter{learner: learner, scorer: scorer, now: time.Now}
}

// WithClock overrides the adapter's clock. Test hook.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// #endregion adapter

// #region symbol

// Symbol encodes the profile's current signals as one categorical symbol:
// topic-variance band, recency band, and the three activity flags.
func (a *Adapter) Symbol(st *state.BehavioralState) string {
	varBand := "lo"
	depth := st.PageScores.Len()
	if depth > 0 {
		agg := a.scorer.Aggregate(st.PageScores.Items())
		dominant := 0.0
		if idx := a.scorer.IndexOfMax(agg); idx >= 0 {
			dominant = agg[idx]
		}
		// A dominant score at or below zero means no topic stands out at
		// all; that is maximal variance.
		if dominant <= 0 || float64(depth)/dominant > topicVarianceThreshold {
			varBand = "hi"
		}
	}

	recBand := "hi"
	if elapsed := a.now().Unix() - st.LastIdleStop; elapsed < recencySeconds {
		recBand = "lo"
	}

	return fmt.Sprintf("var:%s|rec:%s|search:%d|shop:%d|buy:%d",
		varBand, recBand, flag(st.SearchActivity), flag(st.ShopActivity), flag(st.BuyActivity))
}

// #endregion symbol

// #region observe

// Observe runs one update cycle: discretize, initialize the model if absent,
// apply the symbol, persist the returned blob. No-op while ads are disabled.
func (a *Adapter) Observe(st *state.BehavioralState) error {
	if !st.AdEnabled {
		return nil
	}

	if st.TimingModel == nil {
		st.SetTimingModel(a.learner.Init())
	}

	blob, err := a.learner.Update(a.Symbol(st), st.TimingModel)
	if err != nil {
		return fmt.Errorf("timing model update: %w", err)
	}
	st.SetTimingModel(blob)
	return nil
}

// #endregion observe

// #region helpers
func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
