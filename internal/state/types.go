package state

// #region imports
import (
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/history"
)

// #endregion

// #region capacities

const (
	// PageScoreCapacity bounds the rolling page-score history.
	PageScoreCapacity = 5
	// AdsShownCapacity bounds the rolling shown-ad timestamp history.
	AdsShownCapacity = 99
)

// #endregion capacities

// #region event-kind

// EventKind enumerates reporting lifecycle event kinds. The set is closed:
// every kind has exactly one builder in the reporting package.
type EventKind string

const (
	EventNotificationShown   EventKind = "notify"
	EventNotificationOutcome EventKind = "notify_outcome"
	EventTabLoad             EventKind = "load"
	EventTabFocus            EventKind = "focus"
	EventTabBlur             EventKind = "blur"
	EventSettingsChange      EventKind = "settings"
	EventPlace               EventKind = "place"
)

// #endregion event-kind

// #region event

// Event is one normalized reporting record. Stamp is RFC 3339 wall time;
// only the fields relevant to the Kind are populated.
type Event struct {
	Kind          EventKind         `json:"kind"`
	Stamp         string            `json:"stamp"`
	CorrelationID string            `json:"cid,omitempty"`
	AdID          string            `json:"ad_id,omitempty"`
	SurveyID      string            `json:"survey_id,omitempty"`
	Outcome       string            `json:"outcome,omitempty"`  // clicked | dismissed | timeout
	Place         string            `json:"place,omitempty"`    // foreground | background | restart
	SSID          string            `json:"ssid,omitempty"`
	Settings      map[string]string `json:"settings,omitempty"` // changed key → new value
}

// #endregion event

// #region survey

// SurveyStatus tracks where a queued survey is in its lifecycle.
type SurveyStatus string

const (
	SurveyAvailable SurveyStatus = "available"
	SurveyDisplay   SurveyStatus = "display"
)

// Survey is one queued user survey with its display payload.
type Survey struct {
	ID          string       `json:"id"`
	Status      SurveyStatus `json:"status"`
	StatusAt    string       `json:"status_at,omitempty"` // RFC 3339
	Title       string       `json:"title"`
	Description string       `json:"description"`
	TargetURL   string       `json:"target_url"`
}

// #endregion survey

// #region place

// Place is one network location the profile has been seen on, keyed by SSID.
type Place struct {
	SSID     string `json:"ssid"`
	Visits   int    `json:"visits"`
	LastSeen int64  `json:"last_seen"` // unix seconds
}

// #endregion place

// #region behavioral-state

// BehavioralState is the aggregate behavioral record for one user profile.
// One instance per profile; all transitions run under a single logical owner,
// mutated exclusively through the methods in record.go. Fields are exported
// for reads and serialization only.
type BehavioralState struct {
	AdEnabled bool

	PageScores history.Bounded[classify.ScoreVector]
	AdsShown   history.Bounded[int64] // unix seconds per impression

	AdSeen  map[string]bool // catalog ad id → shown in current round-robin cycle
	Events  []Event         // reporting queue, append-only until pruned
	Surveys []Survey

	TimingModel []byte // opaque blob owned by the timing adapter

	AdUUID string // stable per-profile report-path discriminator

	Locale      string
	CurrentSSID string
	Places      map[string]Place

	SearchActivity bool
	ShopActivity   bool
	BuyActivity    bool

	LastUserActivity int64 // unix seconds
	LastIdleStop     int64
	LastAdTime       int64
	LastSearchTime   int64
}

// #endregion behavioral-state
