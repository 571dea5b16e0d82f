package selector

// #region imports
import (
	"github.com/danielpatrickdp/adlocal/go-engine/internal/catalog"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #endregion

// #region reason

// Reason distinguishes the terminal not-served outcomes for observability.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonDisabled        Reason = "disabled"
	ReasonNotForeground   Reason = "not_foreground"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonNoCatalog       Reason = "no_catalog"
	ReasonNoScores        Reason = "no_scores"
	ReasonNoCategoryMatch Reason = "no_category_match"
	ReasonEmptyBucket     Reason = "empty_bucket"
	ReasonIncompleteAd    Reason = "incomplete_ad"
)

// #endregion reason

// #region outcome

// Outcome is the terminal result of one serve cycle. Exactly one of Ad or
// Survey is set when Served; Reason is set when not.
type Outcome struct {
	Served bool
	Reason Reason

	Ad     *catalog.Ad
	Survey *state.Survey

	// Selection trail for the served observability event.
	Category      string // winning classified category path
	MatchedPrefix string // hierarchy level the catalog matched at
	RoundReset    bool   // the seen/unseen round completed and was reset
	SeenCount     int    // partition sizes at selection time
	NotSeenCount  int
}

// #endregion outcome
