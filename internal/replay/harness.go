package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/engine"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/notify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/reporting"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #region types

// StepResult captures the outcome of replaying one step.
type StepResult struct {
	Step   int
	Kind   string
	Served bool
	Reason string // selector reason when a serve cycle skipped
	AdID   string
	Survey string
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps    int
	AdsServed     int
	SurveysServed int
	Skipped       map[string]int // reason → count
	QueueLen      int            // reporting records left queued
	Impressions   int
	FinalState    *state.BehavioralState
}

// #endregion types

// #region transport

// stepTransport feeds the engine whatever the current surveys step carried.
// Uploads never happen during replay.
type stepTransport struct {
	surveys []state.Survey
}

func (t *stepTransport) UploadReport(ctx context.Context, adUUID string, events []state.Event) (reporting.UploadAck, error) {
	return reporting.UploadAck{}, fmt.Errorf("replay runs offline")
}

func (t *stepTransport) DownloadSurveys(ctx context.Context, locale string) ([]state.Survey, error) {
	return t.surveys, nil
}

// #endregion transport

// #region replay

// Replay drives a full engine over the fixture's steps, entirely in-memory,
// with a deterministic clock and a first-index ad draw.
func Replay(f *Fixture) ([]StepResult, Summary, error) {
	transport := &stepTransport{}
	eng, err := engine.NewEngine(engine.Config{
		Transport: transport,
		Notifier:  &notify.CaptureNotifier{},
		Scorer:    classify.NewKeywordScorer(f.Matrix, 1, 0),
		Bundle:    f.Catalog,
		Settings:  engine.StaticSettings(f.Settings),
	})
	if err != nil {
		return nil, Summary{}, fmt.Errorf("replay: %w", err)
	}

	clock := f.Epoch
	eng.WithClock(func() time.Time { return time.Unix(clock, 0) })
	eng.WithRandom(func(int) int { return 0 })
	if err := eng.Init(); err != nil {
		return nil, Summary{}, fmt.Errorf("replay: %w", err)
	}
	defer eng.Shutdown()

	results := make([]StepResult, 0, len(f.Steps))
	for i, step := range f.Steps {
		clock = f.Epoch + step.At
		r := StepResult{Step: i, Kind: step.Kind}

		switch step.Kind {
		case "page":
			out := eng.PageLoaded(step.Words)
			r.Served = out.Served
			r.Reason = string(out.Reason)
			if out.Ad != nil {
				r.AdID = out.Ad.ID
			}
			if out.Survey != nil {
				r.Survey = out.Survey.ID
			}
		case "focus":
			out := eng.TabFocused()
			r.Served = out.Served
			r.Reason = string(out.Reason)
			if out.Ad != nil {
				r.AdID = out.Ad.ID
			}
			if out.Survey != nil {
				r.Survey = out.Survey.ID
			}
		case "blur":
			eng.TabBlurred()
		case "idle":
			eng.IdleStopped()
		case "outcome":
			eng.NotificationOutcome(step.AdID, step.Outcome)
		case "surveys":
			transport.surveys = step.Surveys
			if _, err := eng.RefreshSurveys(context.Background()); err != nil {
				return nil, Summary{}, fmt.Errorf("replay step %d: %w", i, err)
			}
		case "settings":
			eng.SettingsChanged(engine.StaticSettings(step.Settings))
		case "erase":
			eng.EraseHistory()
		default:
			return nil, Summary{}, fmt.Errorf("replay step %d: unknown kind %q", i, step.Kind)
		}

		results = append(results, r)
	}

	return results, summarize(results, eng.Profile()), nil
}

// summarize computes aggregate stats from step results.
func summarize(results []StepResult, final *state.BehavioralState) Summary {
	s := Summary{
		TotalSteps: len(results),
		Skipped:    make(map[string]int),
		FinalState: final,
	}
	for _, r := range results {
		switch {
		case r.AdID != "":
			s.AdsServed++
		case r.Survey != "":
			s.SurveysServed++
		case r.Reason != "" && !r.Served:
			s.Skipped[r.Reason]++
		}
	}
	if final != nil {
		s.QueueLen = len(final.Events)
		s.Impressions = final.AdsShown.Len()
	}
	return s
}

// #endregion replay

// #region verify

// Verify checks step results against the fixture's pinned expectations and
// returns one message per mismatch.
func Verify(results []StepResult, expected []Expected) []string {
	var mismatches []string
	for _, want := range expected {
		if want.Step < 0 || want.Step >= len(results) {
			mismatches = append(mismatches, fmt.Sprintf("step %d: out of range", want.Step))
			continue
		}
		got := results[want.Step]
		if got.Served != want.Served {
			mismatches = append(mismatches, fmt.Sprintf("step %d: served=%v, want %v", want.Step, got.Served, want.Served))
			continue
		}
		if want.Reason != "" && got.Reason != want.Reason {
			mismatches = append(mismatches, fmt.Sprintf("step %d: reason=%q, want %q", want.Step, got.Reason, want.Reason))
		}
		if want.AdID != "" && got.AdID != want.AdID {
			mismatches = append(mismatches, fmt.Sprintf("step %d: ad=%q, want %q", want.Step, got.AdID, want.AdID))
		}
	}
	return mismatches
}

// #endregion verify
