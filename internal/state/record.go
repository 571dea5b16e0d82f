package state

// #region imports
import (
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/history"
	"github.com/google/uuid"
)

// #endregion

// #region constructor

// New creates a fresh profile aggregate. A stable AdUUID is generated
// immediately when ads start enabled.
func New(enabled bool) *BehavioralState {
	s := &BehavioralState{
		AdEnabled:  enabled,
		PageScores: history.NewBounded[classify.ScoreVector](PageScoreCapacity),
		AdsShown:   history.NewBounded[int64](AdsShownCapacity),
		AdSeen:     make(map[string]bool),
		Places:     make(map[string]Place),
	}
	s.EnsureAdUUID()
	return s
}

// #endregion constructor

// #region enable

// SetAdEnabled flips the gate. This is the one transition that always
// applies; enabling also establishes the AdUUID if missing.
func (s *BehavioralState) SetAdEnabled(enabled bool) {
	s.AdEnabled = enabled
	if enabled {
		s.EnsureAdUUID()
	}
}

// EnsureAdUUID generates the profile identifier once. A non-empty AdUUID is
// never regenerated; it only changes after EraseAllHistory.
func (s *BehavioralState) EnsureAdUUID() {
	if s.AdEnabled && s.AdUUID == "" {
		s.AdUUID = uuid.New().String()
	}
}

// #endregion enable

// #region history-ops

// PushPageScores appends one page's classification scores.
func (s *BehavioralState) PushPageScores(v classify.ScoreVector) {
	if !s.AdEnabled {
		return
	}
	s.PageScores = s.PageScores.Push(v)
}

// RecordAdShown appends an impression timestamp and updates LastAdTime.
func (s *BehavioralState) RecordAdShown(ts int64) {
	if !s.AdEnabled {
		return
	}
	s.AdsShown = s.AdsShown.Push(ts)
	s.LastAdTime = ts
}

// #endregion history-ops

// #region seen-set

// RecordAdSeen sets or clears the round-robin seen flag for one catalog id.
func (s *BehavioralState) RecordAdSeen(id string, seen bool) {
	if !s.AdEnabled {
		return
	}
	if s.AdSeen == nil {
		s.AdSeen = make(map[string]bool)
	}
	if seen {
		s.AdSeen[id] = true
	} else {
		delete(s.AdSeen, id)
	}
}

// ResetAdSeen clears the seen flag for every listed id. Used when a
// round-robin cycle over a catalog bucket completes.
func (s *BehavioralState) ResetAdSeen(ids []string) {
	if !s.AdEnabled {
		return
	}
	for _, id := range ids {
		delete(s.AdSeen, id)
	}
}

// #endregion seen-set

// #region event-queue

// AppendEvent appends a reporting record. Deduplication against the queue
// tail is the reporting recorder's job; this is the raw append.
func (s *BehavioralState) AppendEvent(ev Event) {
	if !s.AdEnabled {
		return
	}
	s.Events = append(s.Events, ev)
}

// LastEvent returns the newest queued record, if any.
func (s *BehavioralState) LastEvent() (Event, bool) {
	if len(s.Events) == 0 {
		return Event{}, false
	}
	return s.Events[len(s.Events)-1], true
}

// PruneEventsThrough drops every queued record with a stamp at or below the
// acknowledged watermark. RFC 3339 stamps compare lexicographically.
// Queue maintenance, not behavioral mutation: it runs even when disabled so
// a collector ack landing after a disable still takes effect.
func (s *BehavioralState) PruneEventsThrough(watermark string) {
	if watermark == "" {
		return
	}
	kept := s.Events[:0]
	for _, ev := range s.Events {
		if ev.Stamp > watermark {
			kept = append(kept, ev)
		}
	}
	s.Events = kept
}

// #endregion event-queue

// #region surveys

// UpsertSurvey adds or replaces a queued survey by id.
func (s *BehavioralState) UpsertSurvey(sv Survey) {
	if !s.AdEnabled {
		return
	}
	for i := range s.Surveys {
		if s.Surveys[i].ID == sv.ID {
			s.Surveys[i] = sv
			return
		}
	}
	s.Surveys = append(s.Surveys, sv)
}

// FirstAvailableSurvey returns the oldest queued survey still available.
func (s *BehavioralState) FirstAvailableSurvey() (Survey, bool) {
	for _, sv := range s.Surveys {
		if sv.Status == SurveyAvailable {
			return sv, true
		}
	}
	return Survey{}, false
}

// MarkSurveyDisplayed transitions a survey to display status.
func (s *BehavioralState) MarkSurveyDisplayed(id, stamp string) {
	if !s.AdEnabled {
		return
	}
	for i := range s.Surveys {
		if s.Surveys[i].ID == id {
			s.Surveys[i].Status = SurveyDisplay
			s.Surveys[i].StatusAt = stamp
			return
		}
	}
}

// #endregion surveys

// #region scalar-setters

// SetTimingModel stores the opaque learner blob.
func (s *BehavioralState) SetTimingModel(blob []byte) {
	if !s.AdEnabled {
		return
	}
	s.TimingModel = blob
}

// SetLocale records the detected locale.
func (s *BehavioralState) SetLocale(locale string) {
	if !s.AdEnabled {
		return
	}
	s.Locale = locale
}

// SetCurrentSSID records the current network and updates its place entry.
func (s *BehavioralState) SetCurrentSSID(ssid string, now int64) {
	if !s.AdEnabled {
		return
	}
	s.CurrentSSID = ssid
	if s.Places == nil {
		s.Places = make(map[string]Place)
	}
	p := s.Places[ssid]
	p.SSID = ssid
	p.Visits++
	p.LastSeen = now
	s.Places[ssid] = p
}

// SetSearchActivity flags search activity and stamps LastSearchTime.
func (s *BehavioralState) SetSearchActivity(active bool, now int64) {
	if !s.AdEnabled {
		return
	}
	s.SearchActivity = active
	if active {
		s.LastSearchTime = now
	}
}

// SetShopActivity flags shopping activity.
func (s *BehavioralState) SetShopActivity(active bool) {
	if !s.AdEnabled {
		return
	}
	s.ShopActivity = active
}

// SetBuyActivity flags buying activity.
func (s *BehavioralState) SetBuyActivity(active bool) {
	if !s.AdEnabled {
		return
	}
	s.BuyActivity = active
}

// SetLastUserActivity stamps the most recent user interaction.
func (s *BehavioralState) SetLastUserActivity(ts int64) {
	if !s.AdEnabled {
		return
	}
	s.LastUserActivity = ts
}

// SetLastIdleStop stamps the end of the most recent idle period.
func (s *BehavioralState) SetLastIdleStop(ts int64) {
	if !s.AdEnabled {
		return
	}
	s.LastIdleStop = ts
}

// #endregion scalar-setters

// #region erase

// EraseAllHistory clears the behavioral sub-record unconditionally: it works
// even while ads are disabled, so a user-initiated clear always succeeds.
// The reporting queue survives (already-recorded lifecycle facts, governed by
// the collector watermark). A fresh AdUUID is established only when ads are
// enabled; otherwise the identifier stays unset.
func (s *BehavioralState) EraseAllHistory() {
	s.PageScores = history.NewBounded[classify.ScoreVector](PageScoreCapacity)
	s.AdsShown = history.NewBounded[int64](AdsShownCapacity)
	s.AdSeen = make(map[string]bool)
	s.Surveys = nil
	s.TimingModel = nil
	s.Places = make(map[string]Place)
	s.CurrentSSID = ""
	s.SearchActivity = false
	s.ShopActivity = false
	s.BuyActivity = false
	s.LastUserActivity = 0
	s.LastIdleStop = 0
	s.LastAdTime = 0
	s.LastSearchTime = 0

	s.AdUUID = ""
	s.EnsureAdUUID()
}

// #endregion erase

// #region clone

// Clone deep-copies the aggregate. Used where independent snapshots must
// coexist (replay, tests); the live profile has a single owner.
func (s *BehavioralState) Clone() *BehavioralState {
	c := *s

	c.PageScores = history.NewBounded[classify.ScoreVector](PageScoreCapacity)
	for _, v := range s.PageScores.Items() {
		vc := make(classify.ScoreVector, len(v))
		copy(vc, v)
		c.PageScores = c.PageScores.Push(vc)
	}
	c.AdsShown = history.NewBounded[int64](AdsShownCapacity).Push(s.AdsShown.Items()...)

	c.AdSeen = make(map[string]bool, len(s.AdSeen))
	for k, v := range s.AdSeen {
		c.AdSeen[k] = v
	}
	c.Places = make(map[string]Place, len(s.Places))
	for k, v := range s.Places {
		c.Places[k] = v
	}
	c.Events = append([]Event(nil), s.Events...)
	c.Surveys = append([]Survey(nil), s.Surveys...)
	c.TimingModel = append([]byte(nil), s.TimingModel...)

	return &c
}

// #endregion clone
