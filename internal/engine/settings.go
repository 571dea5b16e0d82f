package engine

// #region imports
import (
	"os"
	"strconv"
)

// #endregion

// #region keys

// Settings keys the engine reads. The host owns settings storage; the engine
// only sees lookups and change notifications.
const (
	KeyEnabled    = "enabled"
	KeyAdsPerHour = "adsPerHour"
	KeyAdsPerDay  = "adsPerDay"
	KeyLocale     = "locale"
	KeyMode       = "mode" // normal | verification
)

// #endregion keys

// #region settings

// Settings is a read-only lookup over host-owned configuration.
type Settings interface {
	String(key, fallback string) string
	Int(key string, fallback int) int
	Bool(key string, fallback bool) bool
}

// #endregion settings

// #region static

// StaticSettings is a map-backed Settings. Used by tests and the replay
// harness, and as the diff baseline for settings-change events.
type StaticSettings map[string]string

func (s StaticSettings) String(key, fallback string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return fallback
}

func (s StaticSettings) Int(key string, fallback int) int {
	v, ok := s[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s StaticSettings) Bool(key string, fallback bool) bool {
	v, ok := s[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// #endregion static

// #region env

// EnvSettings reads settings from environment variables under a prefix,
// e.g. prefix ADLOCAL_ and key adsPerHour read ADLOCAL_ADSPERHOUR.
type EnvSettings struct {
	Prefix string
}

func (e EnvSettings) lookup(key string) (string, bool) {
	return os.LookupEnv(e.Prefix + upper(key))
}

func (e EnvSettings) String(key, fallback string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return fallback
}

func (e EnvSettings) Int(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (e EnvSettings) Bool(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// #endregion env

// #region snapshot

// SettingsSnapshot materializes the keys the engine cares about into a plain
// map, the input shape for settings-change diffs.
func SettingsSnapshot(s Settings) map[string]string {
	return map[string]string{
		KeyEnabled:    s.String(KeyEnabled, "true"),
		KeyAdsPerHour: s.String(KeyAdsPerHour, ""),
		KeyAdsPerDay:  s.String(KeyAdsPerDay, ""),
		KeyLocale:     s.String(KeyLocale, ""),
		KeyMode:       s.String(KeyMode, "normal"),
	}
}

// #endregion snapshot
