package engine

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/catalog"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/classify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/gate"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/notify"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/reporting"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/selector"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/timing"
)

// #endregion

// #region config

// Config carries the engine's collaborators. Store and Transport are
// optional; everything else has a default.
type Config struct {
	Store     *state.Store        // durable snapshot + mirror + diagnostics
	Transport reporting.Transport // collector client; nil = offline
	Notifier  notify.Notifier     // default: log sink
	Scorer    classify.Scorer     // required
	Learner   timing.Learner      // default: count learner
	Bundle    *catalog.Bundle     // downloaded ad catalog; nil = no serving
	Settings  Settings            // default: empty static settings
}

// #endregion config

// #region engine-struct

// Engine is the process-wide coordinator: it owns the profile aggregate and
// serializes every transition, drives serve cycles off browsing events, and
// feeds the reporting scheduler.
// Kill switch: set ADLOCAL_ENABLED=false to make every entry point a no-op.
type Engine struct {
	mu sync.Mutex

	store     *state.Store
	transport reporting.Transport
	notifier  notify.Notifier
	scorer    classify.Scorer
	bundle    *catalog.Bundle

	profile   *state.BehavioralState
	selector  *selector.Selector
	timing    *timing.Adapter
	recorder  *reporting.Recorder
	scheduler *reporting.Scheduler

	settings     map[string]string // last seen snapshot, diff baseline
	verification bool
	foreground   bool
	enabled      bool // process kill switch, independent of the profile gate

	now  func() time.Time
	intn func(n int) int
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Scorer == nil {
		return nil, errors.New("engine: scorer is required")
	}

	enabled := true
	if v := os.Getenv("ADLOCAL_ENABLED"); v == "false" {
		enabled = false
	}

	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.Learner == nil {
		cfg.Learner = timing.CountLearner{}
	}
	if cfg.Settings == nil {
		cfg.Settings = StaticSettings{}
	}

	e := &Engine{
		store:     cfg.Store,
		transport: cfg.Transport,
		notifier:  cfg.Notifier,
		scorer:    cfg.Scorer,
		bundle:    cfg.Bundle,
		timing:    timing.NewAdapter(cfg.Learner, cfg.Scorer),
		recorder:  reporting.NewRecorder(),
		settings:  SettingsSnapshot(cfg.Settings),
		enabled:   enabled,
		now:       time.Now,
	}
	e.verification = cfg.Settings.String(KeyMode, "normal") == "verification"
	e.rebuildSelector(capsFrom(cfg.Settings))

	if cfg.Store != nil {
		e.recorder = e.recorder.WithMirror(cfg.Store.MirrorEvent)
	}
	if cfg.Transport != nil {
		e.scheduler = reporting.NewScheduler(cfg.Transport, e)
	}

	if !enabled {
		log.Printf("[ENGINE] disabled by kill switch")
	}
	return e, nil
}

// WithClock overrides the engine's clock and propagates it to the selector
// and timing adapter. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.timing.WithClock(now)
	e.recorder.WithClock(now)
	e.selector.WithClock(now)
	return e
}

// WithRandom overrides the selector's uniform draw. Test hook.
func (e *Engine) WithRandom(intn func(n int) int) *Engine {
	e.intn = intn
	e.selector.WithRandom(intn)
	return e
}

func capsFrom(s Settings) gate.Caps {
	def := gate.DefaultCaps()
	return gate.Caps{
		AdsPerHour: s.Int(KeyAdsPerHour, def.AdsPerHour),
		AdsPerDay:  s.Int(KeyAdsPerDay, def.AdsPerDay),
	}
}

func (e *Engine) rebuildSelector(caps gate.Caps) {
	e.selector = selector.New(gate.New(caps), e.scorer)
	if e.now != nil {
		e.selector.WithClock(e.now)
	}
	if e.intn != nil {
		e.selector.WithRandom(e.intn)
	}
}

// #endregion engine-struct

// #region lifecycle

// Init loads the persisted profile (or creates a fresh one), records the
// restart place event, and arms the upload scheduler when ads are enabled.
// The scheduler is armed outside the engine lock: arming samples the queue
// through the Source methods, which take the same lock.
func (e *Engine) Init() error {
	if !e.enabled {
		return nil
	}
	start, err := e.initLocked()
	if err != nil {
		return err
	}
	if start {
		e.scheduler.Start()
	}
	return nil
}

func (e *Engine) initLocked() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store != nil {
		loaded, err := e.store.LoadSnapshot()
		switch {
		case err == nil:
			e.profile = loaded
		case errors.Is(err, sql.ErrNoRows):
			e.profile = state.New(StaticSettings(e.settings).Bool(KeyEnabled, true))
		default:
			return false, fmt.Errorf("engine init: %w", err)
		}
	} else {
		e.profile = state.New(StaticSettings(e.settings).Bool(KeyEnabled, true))
	}

	if locale := e.settings[KeyLocale]; locale != "" {
		e.profile.SetLocale(locale)
	}

	e.recorder.Record(e.profile, reporting.PlaceEvent("restart", e.profile.CurrentSSID))
	log.Printf("[ENGINE] init: enabled=%v queue=%d", e.profile.AdEnabled, len(e.profile.Events))
	return e.scheduler != nil && e.profile.AdEnabled, nil
}

// Shutdown stops the scheduler and persists the profile.
func (e *Engine) Shutdown() error {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistLocked()
}

// Profile returns the live aggregate. Callers must not mutate it; every
// transition goes through an engine entry point.
func (e *Engine) Profile() *state.BehavioralState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// Enabled reports the process kill switch, not the profile gate.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// #endregion lifecycle

// #region serve-cycle

// ServeCycle runs one ad selection pass and surfaces the result. Not-served
// outcomes are logged with their reason and are never errors.
func (e *Engine) ServeCycle() selector.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serveCycleLocked()
}

func (e *Engine) serveCycleLocked() selector.Outcome {
	if !e.enabled || e.profile == nil {
		return selector.Outcome{Reason: selector.ReasonDisabled}
	}

	out := e.selector.Pick(e.profile, e.bundle, e.foreground)
	if !out.Served {
		log.Printf("[SERVE] skipped: reason=%s", out.Reason)
		return out
	}

	switch {
	case out.Survey != nil:
		e.notifier.Show(notify.Notification{
			ID:    out.Survey.ID,
			Title: out.Survey.Title,
			Body:  out.Survey.Description,
			URL:   out.Survey.TargetURL,
		})
		e.recorder.Record(e.profile, reporting.NotificationShown("", out.Survey.ID))
		log.Printf("[SERVE] survey=%s", out.Survey.ID)
	case out.Ad != nil:
		e.notifier.Show(notify.Notification{
			ID:      out.Ad.ID,
			Title:   out.Ad.Title,
			Body:    out.Ad.Text,
			URL:     out.Ad.URL,
			Sponsor: out.Ad.Sponsor,
		})
		e.recorder.Record(e.profile, reporting.NotificationShown(out.Ad.ID, ""))
		log.Printf("[SERVE] ad=%s category=%s prefix=%s", out.Ad.ID, out.Category, out.MatchedPrefix)
		if out.RoundReset {
			e.diagnosticLocked("selector", "round-robin cycle reset",
				map[string]any{"prefix": out.MatchedPrefix, "pool": out.NotSeenCount})
		}
	}

	e.persistLocked()
	return out
}

// #endregion serve-cycle

// #region browsing-events

// PageLoaded scores the page's words into the rolling history, records the
// load, feeds the timing model, and runs a serve cycle.
func (e *Engine) PageLoaded(words []string) selector.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return selector.Outcome{Reason: selector.ReasonDisabled}
	}

	e.profile.SetLastUserActivity(e.now().Unix())
	if vec, ok := e.scorer.ScoreWords(words); ok {
		e.profile.PushPageScores(vec)
	}
	e.recorder.Record(e.profile, reporting.TabLoad())
	e.observeTimingLocked()
	return e.serveCycleLocked()
}

// TabFocused marks the profile foreground and runs a serve cycle.
func (e *Engine) TabFocused() selector.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return selector.Outcome{Reason: selector.ReasonDisabled}
	}

	e.foreground = true
	e.profile.SetLastUserActivity(e.now().Unix())
	e.recorder.Record(e.profile, reporting.TabFocus())
	e.recorder.Record(e.profile, reporting.PlaceEvent("foreground", e.profile.CurrentSSID))
	return e.serveCycleLocked()
}

// TabBlurred marks the profile background.
func (e *Engine) TabBlurred() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}

	e.foreground = false
	e.recorder.Record(e.profile, reporting.TabBlur())
	e.recorder.Record(e.profile, reporting.PlaceEvent("background", e.profile.CurrentSSID))
	e.persistLocked()
}

// IdleStopped stamps the end of an idle period and feeds the timing model.
func (e *Engine) IdleStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}

	e.profile.SetLastIdleStop(e.now().Unix())
	e.observeTimingLocked()
}

// SearchStarted flags search activity.
func (e *Engine) SearchStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}
	e.profile.SetSearchActivity(true, e.now().Unix())
}

// ShoppingSeen flags shopping activity.
func (e *Engine) ShoppingSeen(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}
	e.profile.SetShopActivity(active)
}

// PurchaseSeen flags buying activity.
func (e *Engine) PurchaseSeen(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}
	e.profile.SetBuyActivity(active)
}

// SSIDChanged records the current network. A failed lookup falls back to
// "unknown" and lands in diagnostics; it never propagates.
func (e *Engine) SSIDChanged(ssid string, lookupErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}

	if lookupErr != nil {
		e.diagnosticLocked("network", "ssid lookup failed", map[string]any{"error": lookupErr.Error()})
		ssid = "unknown"
	}
	e.profile.SetCurrentSSID(ssid, e.now().Unix())
}

// LocaleDetected records the detected locale. A failed detection falls back
// to the empty locale and lands in diagnostics.
func (e *Engine) LocaleDetected(locale string, detectErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}

	if detectErr != nil {
		e.diagnosticLocked("locale", "locale detection failed", map[string]any{"error": detectErr.Error()})
		locale = ""
	}
	e.profile.SetLocale(locale)
}

func (e *Engine) ready() bool {
	return e.enabled && e.profile != nil
}

func (e *Engine) observeTimingLocked() {
	if err := e.timing.Observe(e.profile); err != nil {
		e.diagnosticLocked("timing", "model update failed", map[string]any{"error": err.Error()})
	}
}

// #endregion browsing-events

// #region notification-outcome

// NotificationOutcome folds user feedback on a surfaced ad back into the
// profile: the outcome is translated onto the reporting taxonomy, recorded,
// and deliberate feedback marks the ad seen for round-robin purposes.
func (e *Engine) NotificationOutcome(adID, raw string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready() {
		return
	}

	outcome, ok := reporting.TranslateOutcome(raw)
	if !ok {
		e.diagnosticLocked("notify", "unknown notification outcome", map[string]any{"raw": raw, "ad": adID})
		return
	}
	if reporting.MarksSeen(outcome) {
		e.profile.RecordAdSeen(adID, true)
	}
	e.recorder.Record(e.profile, reporting.NotificationOutcome(adID, outcome))
	e.persistLocked()
}

// #endregion notification-outcome

// #region settings

// SettingsChanged applies a new settings snapshot: the diff is recorded as a
// settings event, caps rebuild the serve gate, and the enabled flag drives
// the profile gate and the upload scheduler.
func (e *Engine) SettingsChanged(s Settings) {
	startSched, stopSched := e.applySettingsLocked(s)
	if e.scheduler == nil {
		return
	}
	// Outside the engine lock; arming samples the queue through Source.
	if stopSched {
		e.scheduler.Stop()
	}
	if startSched {
		e.scheduler.Start()
	}
}

func (e *Engine) applySettingsLocked(s Settings) (startSched, stopSched bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled || e.profile == nil {
		return false, false
	}

	next := SettingsSnapshot(s)
	diff := reporting.SettingsDiff(e.settings, next)
	e.settings = next
	e.verification = next[KeyMode] == "verification"
	e.rebuildSelector(capsFrom(s))

	wasEnabled := e.profile.AdEnabled
	nowEnabled := s.Bool(KeyEnabled, true)

	// Enable first so the settings event is recordable on an enable flip.
	if nowEnabled && !wasEnabled {
		e.profile.SetAdEnabled(true)
	}
	if len(diff) > 0 {
		e.recorder.Record(e.profile, reporting.SettingsChange(diff))
	}
	if locale := next[KeyLocale]; locale != "" && locale != e.profile.Locale {
		e.profile.SetLocale(locale)
	}
	if !nowEnabled && wasEnabled {
		e.profile.SetAdEnabled(false)
		stopSched = true
	}
	if nowEnabled && !wasEnabled {
		startSched = true
	}

	e.persistLocked()
	return startSched, stopSched
}

// EraseHistory clears the behavioral sub-record on user request. Works even
// while ads are disabled.
func (e *Engine) EraseHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return
	}
	e.profile.EraseAllHistory()
	log.Printf("[ENGINE] history erased, queue=%d retained", len(e.profile.Events))
	e.persistLocked()
}

// #endregion settings

// #region surveys

// RefreshSurveys downloads survey definitions for the profile's locale and
// merges the available ones into the queue.
func (e *Engine) RefreshSurveys(ctx context.Context) (int, error) {
	e.mu.Lock()
	transport, locale, verification := e.transport, "", e.verification
	if e.profile != nil {
		locale = e.profile.Locale
	}
	ready := e.ready()
	e.mu.Unlock()

	if !ready || transport == nil {
		return 0, nil
	}
	downloaded, err := transport.DownloadSurveys(ctx, locale)
	if err != nil {
		return 0, fmt.Errorf("refresh surveys: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	merged := reporting.MergeSurveys(e.profile, downloaded, verification)
	if merged > 0 {
		e.persistLocked()
	}
	return merged, nil
}

// #endregion surveys

// #region reporting-source

// Snapshot implements reporting.Source. The scheduler's timer goroutine
// enters here, so it takes the same lock as every other transition.
func (e *Engine) Snapshot() (string, []state.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return "", nil
	}
	src := reporting.StateSource{State: e.profile}
	return src.Snapshot()
}

// PruneThrough implements reporting.Source: the acknowledged watermark
// prunes the in-memory queue and the durable mirror together.
func (e *Engine) PruneThrough(watermark string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return
	}
	e.profile.PruneEventsThrough(watermark)
	if e.store != nil {
		if err := e.store.PruneMirrorThrough(watermark); err != nil {
			log.Printf("[ENGINE] mirror prune failed: %v", err)
		}
	}
	e.persistLocked()
}

// #endregion reporting-source

// #region persistence

func (e *Engine) persistLocked() error {
	if e.store == nil || e.profile == nil {
		return nil
	}
	if err := e.store.SaveSnapshot(e.profile); err != nil {
		log.Printf("[ENGINE] snapshot save failed: %v", err)
		return err
	}
	return nil
}

func (e *Engine) diagnosticLocked(source, message string, detail map[string]any) {
	log.Printf("[ENGINE] %s: %s %v", source, message, detail)
	if e.store == nil {
		return
	}
	var detailJSON string
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			detailJSON = string(raw)
		}
	}
	if err := e.store.LogDiagnostic(state.Diagnostic{Source: source, Message: message, Detail: detailJSON}); err != nil {
		log.Printf("[ENGINE] diagnostic write failed: %v", err)
	}
}

// #endregion persistence
