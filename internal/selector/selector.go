package selector

// #region imports
import (
	"math/rand"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/catalog"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/gate"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #endregion

// #region selector-struct

// Selector runs one serve cycle: ordered preconditions, survey preemption,
// hierarchical category fallback, and seen/unseen round-robin.
type Selector struct {
	gate   *gate.Gate
	scorer classify.Scorer
	intn   func(n int) int
	now    func() time.Time
}

// New creates a selector with the real clock and math/rand pick.
func New(g *gate.Gate, scorer classify.Scorer) *Selector {
	return &Selector{gate: g, scorer: scorer, intn: rand.Intn, now: time.Now}
}

// WithRandom overrides the uniform index draw. Test hook.
func (s *Selector) WithRandom(intn func(n int) int) *Selector {
	s.intn = intn
	return s
}

// WithClock overrides the selector's clock. Test hook.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// #endregion selector-struct

// #region pick

// Pick evaluates one serve cycle against the profile. Preconditions check in
// order and short-circuit on the first failure; every failure is a terminal
// not-served outcome with its own reason, never an error.
func (s *Selector) Pick(st *state.BehavioralState, bundle *catalog.Bundle, foreground bool) Outcome {
	now := s.now()

	// 0. Disabled profiles mutate nothing and serve nothing.
	if !st.AdEnabled {
		return notServed(ReasonDisabled)
	}

	// 1+2. Foreground and rolling-window pacing.
	decision := s.gate.Evaluate(st.AdsShown.Items(), foreground, now.Unix())
	if !decision.Allow {
		if decision.Vetoes[0].Type == gate.VetoBackground {
			return notServed(ReasonNotForeground)
		}
		return notServed(ReasonRateLimited)
	}

	// 3. An available survey preempts ad selection entirely this cycle.
	if sv, ok := st.FirstAvailableSurvey(); ok {
		st.MarkSurveyDisplayed(sv.ID, now.UTC().Format(time.RFC3339))
		sv.Status = state.SurveyDisplay
		sv.StatusAt = now.UTC().Format(time.RFC3339)
		return Outcome{Served: true, Survey: &sv}
	}

	// 4. A catalog bundle must be present.
	if bundle == nil {
		return notServed(ReasonNoCatalog)
	}

	// 5. Aggregate the page-score history and take the winning category.
	scores := st.PageScores.Items()
	if len(scores) == 0 {
		return notServed(ReasonNoScores)
	}
	agg := s.scorer.Aggregate(scores)
	idx := s.scorer.IndexOfMax(agg)
	categories := s.scorer.Categories()
	if idx < 0 || idx >= len(categories) {
		return notServed(ReasonNoScores)
	}
	category := categories[idx]

	// 6. Hierarchical fallback over the dash-delimited path.
	prefix, ads, ok := bundle.Lookup(category)
	if !ok {
		out := notServed(ReasonNoCategoryMatch)
		out.Category = category
		return out
	}
	if len(ads) == 0 {
		// An empty bucket must not loop through reset.
		out := notServed(ReasonEmptyBucket)
		out.Category = category
		out.MatchedPrefix = prefix
		return out
	}

	// 7. Round-robin: partition on the seen-set, reset when exhausted.
	var seen, notSeen []catalog.Ad
	for _, ad := range ads {
		if st.AdSeen[ad.ID] {
			seen = append(seen, ad)
		} else {
			notSeen = append(notSeen, ad)
		}
	}
	reset := false
	if len(notSeen) == 0 {
		ids := make([]string, len(ads))
		for i, ad := range ads {
			ids[i] = ad.ID
		}
		st.ResetAdSeen(ids)
		notSeen = ads
		seen = nil
		reset = true
	}

	// 8. Uniform draw over the not-seen pool.
	ad := notSeen[s.intn(len(notSeen))]

	// 9. Incomplete payloads are not surfaced.
	if err := ad.Validate(); err != nil {
		out := notServed(ReasonIncompleteAd)
		out.Category = category
		out.MatchedPrefix = prefix
		out.RoundReset = reset
		return out
	}

	// 10. Record the impression; surfacing and reporting are the caller's.
	st.RecordAdShown(now.Unix())

	return Outcome{
		Served:        true,
		Ad:            &ad,
		Category:      category,
		MatchedPrefix: prefix,
		RoundReset:    reset,
		SeenCount:     len(seen),
		NotSeenCount:  len(notSeen),
	}
}

func notServed(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

// #endregion pick
