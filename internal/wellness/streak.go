package wellness

import (
	"time"

	"grandbridge/internal/model"
)

// NextStreak advances a daily streak. The first activity starts at 1, a repeat on
// the same day keeps it, the day after the last one extends it, anything later resets.
func NextStreak(last *time.Time, today time.Time, current int) int {
	if last == nil {
		return 1
	}
	l, t := model.Civil(*last), model.Civil(today)
	switch {
	case l.Equal(t):
		if current == 0 {
			return 1
		}
		return current
	case l.AddDate(0, 0, 1).Equal(t):
		return current + 1
	default:
		return 1
	}
}

// DashboardScore combines planting streak, mindfulness streak and minutes into 0..200.
func DashboardScore(streak, mindfulnessStreak, minutes int) int {
	return min(streak*10, 50) + min(mindfulnessStreak*10, 50) + min(minutes, 100)
}
