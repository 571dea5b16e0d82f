package reporting

// #region imports
import (
	"log"
	"reflect"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
	"github.com/google/uuid"
)

// #endregion

// #region outcome-taxonomy

// TranslateOutcome maps raw notification outcomes onto the reporting
// taxonomy: clicked→clicked, closed→dismissed, ignored→timeout.
func TranslateOutcome(raw string) (string, bool) {
	switch raw {
	case "clicked":
		return "clicked", true
	case "closed":
		return "dismissed", true
	case "ignored":
		return "timeout", true
	}
	return "", false
}

// MarksSeen reports whether a translated outcome marks the ad as seen for
// round-robin purposes. Click and dismiss are deliberate user feedback;
// a timeout is not.
func MarksSeen(outcome string) bool {
	return outcome == "clicked" || outcome == "dismissed"
}

// #endregion outcome-taxonomy

// #region builders

// NotificationShown records an ad or survey notification being surfaced.
func NotificationShown(adID, surveyID string) state.Event {
	return state.Event{Kind: state.EventNotificationShown, AdID: adID, SurveyID: surveyID}
}

// NotificationOutcome records translated user feedback on a notification.
func NotificationOutcome(adID, outcome string) state.Event {
	return state.Event{Kind: state.EventNotificationOutcome, AdID: adID, Outcome: outcome}
}

// TabLoad records a page load.
func TabLoad() state.Event {
	return state.Event{Kind: state.EventTabLoad}
}

// TabFocus records a tab gaining focus.
func TabFocus() state.Event {
	return state.Event{Kind: state.EventTabFocus}
}

// TabBlur records a tab losing focus.
func TabBlur() state.Event {
	return state.Event{Kind: state.EventTabBlur}
}

// SettingsChange records a settings diff (changed key → new value).
func SettingsChange(diff map[string]string) state.Event {
	return state.Event{Kind: state.EventSettingsChange, Settings: diff}
}

// PlaceEvent records a foreground/background/restart transition along with
// the current network identifier.
func PlaceEvent(place, ssid string) state.Event {
	return state.Event{Kind: state.EventPlace, Place: place, SSID: ssid}
}

// #endregion builders

// #region settings-diff

// SettingsDiff computes changed keys between two settings maps. Removed keys
// appear with an empty value.
func SettingsDiff(old, new map[string]string) map[string]string {
	diff := make(map[string]string)
	for k, v := range new {
		if old[k] != v {
			diff[k] = v
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			diff[k] = ""
		}
	}
	return diff
}

// #endregion settings-diff

// #region recorder

// Recorder stamps and appends lifecycle events to the profile's queue,
// enforcing the dedup invariant: a record structurally identical to the
// queue tail (stamp aside) is suppressed.
type Recorder struct {
	now    func() time.Time
	mirror func(state.Event) error // optional durable mirror
}

// NewRecorder creates a recorder on the wall clock.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// WithClock overrides the recorder's clock. Test hook.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// WithMirror attaches a durable event mirror (the SQLite store).
func (r *Recorder) WithMirror(mirror func(state.Event) error) *Recorder {
	r.mirror = mirror
	return r
}

// Record appends the event to the queue. Returns false when suppressed:
// profile disabled, or duplicate of the queue tail.
func (r *Recorder) Record(st *state.BehavioralState, ev state.Event) bool {
	if !st.AdEnabled {
		return false
	}
	ev.Stamp = r.now().UTC().Format(time.RFC3339)

	if last, ok := st.LastEvent(); ok && equalIgnoringStamp(last, ev) {
		return false
	}

	st.AppendEvent(ev)
	if r.mirror != nil {
		if err := r.mirror(ev); err != nil {
			log.Printf("[REPORT] event mirror failed: %v", err)
		}
	}
	return true
}

// equalIgnoringStamp compares two records with stamp and correlation id
// zeroed. The correlation id is upload bookkeeping, not content.
func equalIgnoringStamp(a, b state.Event) bool {
	a.Stamp, b.Stamp = "", ""
	a.CorrelationID, b.CorrelationID = "", ""
	return reflect.DeepEqual(a, b)
}

// #endregion recorder

// #region correlation

// EnsureCorrelation assigns a fresh correlation id to the newest queued
// record if it lacks one, and returns it. Upload bookkeeping: runs
// regardless of the enabled gate, like pruning.
func EnsureCorrelation(st *state.BehavioralState) string {
	if len(st.Events) == 0 {
		return ""
	}
	last := &st.Events[len(st.Events)-1]
	if last.CorrelationID == "" {
		last.CorrelationID = uuid.New().String()
	}
	return last.CorrelationID
}

// #endregion correlation

// #region survey-merge

// MergeSurveys folds downloaded survey definitions into the profile's
// queue. Only status=available definitions are taken. In verification mode,
// a definition whose id is already queued under a non-available status is
// excluded, so a survey the user already interacted with is not re-surfaced.
func MergeSurveys(st *state.BehavioralState, downloaded []state.Survey, verification bool) int {
	if !st.AdEnabled {
		return 0
	}
	existing := make(map[string]state.SurveyStatus, len(st.Surveys))
	for _, sv := range st.Surveys {
		existing[sv.ID] = sv.Status
	}

	merged := 0
	for _, sv := range downloaded {
		if sv.Status != state.SurveyAvailable {
			continue
		}
		if status, ok := existing[sv.ID]; ok && verification && status != state.SurveyAvailable {
			continue
		}
		st.UpsertSurvey(sv)
		merged++
	}
	return merged
}

// #endregion survey-merge
