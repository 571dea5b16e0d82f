package state

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS behavioral_profile (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot      TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reporting_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT NOT NULL,
	stamp         TEXT NOT NULL,
	cid           TEXT,
	payload_json  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reporting_events_stamp
ON reporting_events(stamp);

CREATE TABLE IF NOT EXISTS diagnostics_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source        TEXT NOT NULL,
	message       TEXT NOT NULL,
	detail_json   TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store persists the profile snapshot, a reporting-event mirror, and
// structured diagnostics in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region snapshot

// snapshotJSON is the serialized form of the aggregate. Bounded histories
// flatten to plain arrays; capacities are rebuilt from the constants on load.
type snapshotJSON struct {
	AdEnabled        bool                   `json:"ad_enabled"`
	PageScores       [][]float64            `json:"page_scores"`
	AdsShown         []int64                `json:"ads_shown"`
	AdSeen           map[string]bool        `json:"ad_seen"`
	Events           []Event                `json:"events"`
	Surveys          []Survey               `json:"surveys"`
	TimingModel      []byte                 `json:"timing_model,omitempty"`
	AdUUID           string                 `json:"ad_uuid,omitempty"`
	Locale           string                 `json:"locale,omitempty"`
	CurrentSSID      string                 `json:"current_ssid,omitempty"`
	Places           map[string]Place       `json:"places,omitempty"`
	SearchActivity   bool                   `json:"search_activity"`
	ShopActivity     bool                   `json:"shop_activity"`
	BuyActivity      bool                   `json:"buy_activity"`
	LastUserActivity int64                  `json:"last_user_activity"`
	LastIdleStop     int64                  `json:"last_idle_stop"`
	LastAdTime       int64                  `json:"last_ad_time"`
	LastSearchTime   int64                  `json:"last_search_time"`
}

// SaveSnapshot writes the current aggregate as the single profile row.
func (s *Store) SaveSnapshot(rec *BehavioralState) error {
	snap := snapshotJSON{
		AdEnabled:        rec.AdEnabled,
		AdSeen:           rec.AdSeen,
		Events:           rec.Events,
		Surveys:          rec.Surveys,
		TimingModel:      rec.TimingModel,
		AdUUID:           rec.AdUUID,
		Locale:           rec.Locale,
		CurrentSSID:      rec.CurrentSSID,
		Places:           rec.Places,
		SearchActivity:   rec.SearchActivity,
		ShopActivity:     rec.ShopActivity,
		BuyActivity:      rec.BuyActivity,
		LastUserActivity: rec.LastUserActivity,
		LastIdleStop:     rec.LastIdleStop,
		LastAdTime:       rec.LastAdTime,
		LastSearchTime:   rec.LastSearchTime,
	}
	for _, v := range rec.PageScores.Items() {
		snap.PageScores = append(snap.PageScores, []float64(v))
	}
	snap.AdsShown = rec.AdsShown.Items()

	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO behavioral_profile (id, snapshot, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the profile row back into an aggregate.
// Returns sql.ErrNoRows when no profile has been saved yet.
func (s *Store) LoadSnapshot() (*BehavioralState, error) {
	var blob string
	err := s.db.QueryRow(`SELECT snapshot FROM behavioral_profile WHERE id = 1`).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap snapshotJSON
	if err := json.Unmarshal([]byte(blob), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	rec := New(false)
	rec.AdEnabled = snap.AdEnabled
	for _, v := range snap.PageScores {
		rec.PageScores = rec.PageScores.Push(v)
	}
	rec.AdsShown = rec.AdsShown.Push(snap.AdsShown...)
	if snap.AdSeen != nil {
		rec.AdSeen = snap.AdSeen
	}
	rec.Events = snap.Events
	rec.Surveys = snap.Surveys
	rec.TimingModel = snap.TimingModel
	rec.AdUUID = snap.AdUUID
	rec.Locale = snap.Locale
	rec.CurrentSSID = snap.CurrentSSID
	if snap.Places != nil {
		rec.Places = snap.Places
	}
	rec.SearchActivity = snap.SearchActivity
	rec.ShopActivity = snap.ShopActivity
	rec.BuyActivity = snap.BuyActivity
	rec.LastUserActivity = snap.LastUserActivity
	rec.LastIdleStop = snap.LastIdleStop
	rec.LastAdTime = snap.LastAdTime
	rec.LastSearchTime = snap.LastSearchTime
	return rec, nil
}

// #endregion snapshot

// #region event-mirror

// MirrorEvent appends one reporting record to the durable event mirror.
func (s *Store) MirrorEvent(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reporting_events (kind, stamp, cid, payload_json) VALUES (?, ?, ?, ?)`,
		string(ev.Kind), ev.Stamp, nullIfEmpty(ev.CorrelationID), string(payload),
	)
	if err != nil {
		return fmt.Errorf("mirror event: %w", err)
	}
	return nil
}

// PruneMirrorThrough deletes mirrored records at or below the watermark.
func (s *Store) PruneMirrorThrough(watermark string) error {
	if watermark == "" {
		return nil
	}
	_, err := s.db.Exec(`DELETE FROM reporting_events WHERE stamp <= ?`, watermark)
	if err != nil {
		return fmt.Errorf("prune mirror: %w", err)
	}
	return nil
}

// ListMirroredEvents returns the most recent mirrored records, newest first.
func (s *Store) ListMirroredEvents(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT payload_json FROM reporting_events ORDER BY stamp DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// #endregion event-mirror

// #region diagnostics

// Diagnostic is one structured diagnostic record.
type Diagnostic struct {
	Source    string
	Message   string
	Detail    string // JSON, optional
	CreatedAt time.Time
}

// LogDiagnostic writes a diagnostic row. Recoverable external failures
// (locale, SSID, upload) land here and never propagate.
func (s *Store) LogDiagnostic(d Diagnostic) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO diagnostics_log (source, message, detail_json, created_at) VALUES (?, ?, ?, ?)`,
		d.Source, d.Message, nullIfEmpty(d.Detail), d.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log diagnostic: %w", err)
	}
	return nil
}

// ListDiagnostics returns the most recent diagnostics, newest first.
func (s *Store) ListDiagnostics(limit int) ([]Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT source, message, detail_json, created_at FROM diagnostics_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		var detail sql.NullString
		var createdStr string
		if err := rows.Scan(&d.Source, &d.Message, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		if detail.Valid {
			d.Detail = detail.String
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, d)
	}
	return out, rows.Err()
}

// #endregion diagnostics

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
