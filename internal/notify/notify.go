package notify

// #region imports
import (
	"log"
)

// #endregion

// #region notifier

// Notification is the surfaced payload for one served ad or survey.
type Notification struct {
	ID      string // catalog ad id or survey id
	Title   string
	Body    string
	URL     string
	Sponsor string // empty for surveys
}

// Notifier surfaces a notification to the user. Show is fire-and-forget:
// delivery is best effort and outcomes arrive later as separate events.
type Notifier interface {
	Show(n Notification)
}

// #endregion notifier

// #region log-notifier

// LogNotifier writes notifications to the process log. Default sink for
// headless runs and the replay harness.
type LogNotifier struct{}

func (LogNotifier) Show(n Notification) {
	log.Printf("[NOTIFY] id=%s title=%q sponsor=%q url=%s", n.ID, n.Title, n.Sponsor, n.URL)
}

// #endregion log-notifier

// #region capture-notifier

// CaptureNotifier records every notification in order. Test sink.
type CaptureNotifier struct {
	Shown []Notification
}

func (c *CaptureNotifier) Show(n Notification) {
	c.Shown = append(c.Shown, n)
}

// #endregion capture-notifier
