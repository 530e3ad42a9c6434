package mission

import (
	"fmt"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
)

// Title keywords used by catalogues that predate the kind tag.
const (
	keywordStreak = "racha"
	keywordUnlock = "desbloquea"
)

var fold = cases.Fold()

func titleHas(title, keyword string) bool {
	t := fold.String(unidecode.Unidecode(title))
	return strings.Contains(t, keyword)
}

// InferKind derives a kind for a mission that has none, from its frequency and
// title. It is applied once when the catalogue is loaded.
func InferKind(freq Frequency, title string) Kind {
	switch {
	case freq == FrequencyDaily:
		return KindDailyDeclaration
	case freq == FrequencyWeekly && titleHas(title, keywordStreak):
		return KindWeeklyStreak
	case freq == FrequencyWeekly && titleHas(title, keywordUnlock):
		return KindWeeklyUnlock
	case freq == FrequencyGlobal && titleHas(title, keywordStreak):
		return KindStreakDay
	default:
		return KindStandard
	}
}

// DefaultWeeklyStreakTarget is the streak length a weekly-streak mission asks for.
const DefaultWeeklyStreakTarget = 5

// Stats holds the counters behind global-mission progress fractions.
type Stats struct {
	DeclarationsToday     int
	GlobalStreak          int
	ManualUnlocksThisWeek int
	WeeklyStreakTarget    int
}

// Fraction is a display-only progress value.
type Fraction struct {
	Current int    `json:"current"`
	Target  int    `json:"target"`
	Label   string `json:"label"`
}

// Reached reports whether the target is met.
func (f Fraction) Reached() bool {
	return f.Current >= f.Target
}

// ProgressFraction returns the fraction for kinds that have one.
func ProgressFraction(kind Kind, s Stats) (Fraction, bool) {
	switch kind {
	case KindDailyDeclaration:
		return Fraction{
			Current: s.DeclarationsToday,
			Target:  1,
			Label:   fmt.Sprintf("%d/1 declarations today", s.DeclarationsToday),
		}, true
	case KindWeeklyStreak:
		target := s.WeeklyStreakTarget
		if target <= 0 {
			target = DefaultWeeklyStreakTarget
		}
		return Fraction{
			Current: s.GlobalStreak,
			Target:  target,
			Label:   fmt.Sprintf("%d/%d consecutive streak days", s.GlobalStreak, target),
		}, true
	case KindWeeklyUnlock:
		return Fraction{
			Current: s.ManualUnlocksThisWeek,
			Target:  1,
			Label:   fmt.Sprintf("%d/1 modules unlocked this week", s.ManualUnlocksThisWeek),
		}, true
	default:
		return Fraction{}, false
	}
}
