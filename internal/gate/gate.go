package gate

// #region imports
import "fmt"

// #endregion

// #region windows

const (
	// HourWindow is the hourly pacing window in seconds.
	HourWindow int64 = 3600
	// DayWindow is the daily pacing window in seconds.
	DayWindow int64 = 86400
)

// #endregion windows

// #region gate
// Gate evaluates whether showing another ad now would violate the serve
// preconditions: profile foreground, hourly cap, daily cap.
type Gate struct {
	caps Caps
}

// New creates a gate with the given caps.
func New(caps Caps) *Gate {
	return &Gate{caps: caps}
}

// Evaluate checks vetoes in precondition order. shown is the raw impression
// timestamp history (unix seconds); now is the evaluation instant. Counts
// are recomputed from the history on every call, never cached.
func (g *Gate) Evaluate(shown []int64, foreground bool, now int64) Decision {
	var vetoes []Veto

	if !foreground {
		vetoes = append(vetoes, Veto{
			Type:   VetoBackground,
			Reason: "profile not in foreground",
		})
	}

	if hourly := RecentCount(shown, now, HourWindow); hourly > g.caps.AdsPerHour {
		vetoes = append(vetoes, Veto{
			Type:   VetoHourlyCap,
			Reason: fmt.Sprintf("%d impressions in the last hour exceeds cap %d", hourly, g.caps.AdsPerHour),
		})
	}

	if daily := RecentCount(shown, now, DayWindow); daily > g.caps.AdsPerDay {
		vetoes = append(vetoes, Veto{
			Type:   VetoDailyCap,
			Reason: fmt.Sprintf("%d impressions in the last day exceeds cap %d", daily, g.caps.AdsPerDay),
		})
	}

	return Decision{Allow: len(vetoes) == 0, Vetoes: vetoes}
}

// AllowedToShowAd is the rate-limit check alone, without the foreground veto.
func (g *Gate) AllowedToShowAd(shown []int64, now int64) bool {
	return RecentCount(shown, now, HourWindow) <= g.caps.AdsPerHour &&
		RecentCount(shown, now, DayWindow) <= g.caps.AdsPerDay
}

// #endregion gate

// #region recent-count

// RecentCount counts timestamps with now - t < window. The window boundary
// is strict: an impression exactly window seconds old is outside it.
func RecentCount(shown []int64, now, window int64) int {
	n := 0
	for _, t := range shown {
		if now-t < window {
			n++
		}
	}
	return n
}

// #endregion recent-count
