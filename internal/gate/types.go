package gate

// #region veto-type
// VetoType enumerates serve-precondition veto categories.
type VetoType string

const (
	VetoBackground VetoType = "background"
	VetoHourlyCap  VetoType = "hourly_cap"
	VetoDailyCap   VetoType = "daily_cap"
)

// #endregion veto-type

// #region veto-signal
// Veto represents one failed serve precondition.
type Veto struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region caps
// Caps holds the rolling-window impression caps. A cap of N permits exactly
// N ads already shown inside the window before refusing the (N+1)-th.
type Caps struct {
	AdsPerHour int
	AdsPerDay  int
}

// DefaultCaps returns the stock pacing configuration.
func DefaultCaps() Caps {
	return Caps{AdsPerHour: 3, AdsPerDay: 10}
}

// #endregion caps

// #region decision
// Decision is the output of the gate evaluation.
type Decision struct {
	Allow  bool
	Vetoes []Veto // non-empty when not allowed
}

// #endregion decision
