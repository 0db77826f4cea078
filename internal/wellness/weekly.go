package wellness

import (
	"fmt"
	"sort"
	"time"

	"grandbridge/internal/model"
)

// WeekWindow is the number of days a weekly report looks back.
const WeekWindow = 7

type WeeklyStats struct {
	TotalPlants      int
	TotalCheckIns    int
	TotalMindfulness int
	MindfulMinutes   int
	Averages         Averages
	BestDay          *time.Time
	ToughestDay      *time.Time
	SelfCareScore    float64
	ConsistencyScore float64
}

type Insight struct {
	Kind    string // success, info, warning
	Icon    string
	Title   string
	Message string
}

type MoodTrend string

const (
	TrendStable    MoodTrend = "stable"
	TrendImproving MoodTrend = "improving"
	TrendDeclining MoodTrend = "declining"
	TrendVariable  MoodTrend = "variable"
)

type WeeklyReport struct {
	Since        time.Time
	Stats        WeeklyStats
	Insights     []Insight
	Trend        MoodTrend // empty without check-ins
	Achievements []model.Achievement
	Plants       []model.Vegetable
	CheckIns     []model.CheckIn
}

// BuildWeeklyReport aggregates one week of activity already filtered to the window.
// Timestamps are bucketed into days in loc.
func BuildWeeklyReport(loc *time.Location, since time.Time, plants []model.Vegetable, checkins []model.CheckIn,
	logs []model.MindfulnessLog, achievements []model.Achievement) *WeeklyReport {

	sorted := append([]model.CheckIn(nil), checkins...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	stats := weeklyStats(loc, plants, sorted, logs)
	return &WeeklyReport{
		Since:        since,
		Stats:        stats,
		Insights:     weeklyInsights(stats),
		Trend:        moodTrend(sorted),
		Achievements: achievements,
		Plants:       plants,
		CheckIns:     sorted,
	}
}

func dayScore(c *model.CheckIn) int {
	return c.MoodRating + c.EnergyLevel + (6 - c.StressLevel) + c.SleepQuality
}

func weeklyStats(loc *time.Location, plants []model.Vegetable, checkins []model.CheckIn, logs []model.MindfulnessLog) WeeklyStats {
	s := WeeklyStats{
		TotalPlants:      len(plants),
		TotalCheckIns:    len(checkins),
		TotalMindfulness: len(logs),
		Averages:         Average(checkins),
	}
	for _, l := range logs {
		s.MindfulMinutes += l.DurationMinutes
	}

	if len(checkins) > 0 {
		best, worst := -1, -1
		actions := 0
		for i := range checkins {
			c := &checkins[i]
			if best < 0 || dayScore(c) > dayScore(&checkins[best]) {
				best = i
			}
			if worst < 0 || dayScore(c) < dayScore(&checkins[worst]) {
				worst = i
			}
			actions += c.SelfCareCount()
		}
		bd, wd := checkins[best].Date, checkins[worst].Date
		s.BestDay, s.ToughestDay = &bd, &wd
		s.SelfCareScore = float64(actions) / float64(len(checkins)*4) * 100
	}

	days := map[time.Time]bool{}
	for _, p := range plants {
		days[model.Civil(p.PlantedAt.In(loc))] = true
	}
	for _, c := range checkins {
		days[model.Civil(c.Date)] = true
	}
	for _, l := range logs {
		days[model.Civil(l.CompletedAt.In(loc))] = true
	}
	s.ConsistencyScore = float64(len(days)) / WeekWindow * 100
	return s
}

func weeklyInsights(s WeeklyStats) []Insight {
	var out []Insight

	switch {
	case s.ConsistencyScore >= 85:
		out = append(out, Insight{"success", "🌟", "Outstanding Consistency!",
			"You checked in with yourself nearly every day while caring for your grandchildren. Your dedication to your own wellbeing is inspiring!"})
	case s.ConsistencyScore >= 60:
		out = append(out, Insight{"info", "💪", "Good Routine Building",
			fmt.Sprintf("You stayed consistent %d%% of the week despite your caregiving demands. Try to add just one more check-in next week.", int(s.ConsistencyScore))})
	default:
		out = append(out, Insight{"warning", "🌱", "Room to Grow",
			"Caring for little ones makes self-care harder. Try checking in during their nap time or after bedtime."})
	}

	a := s.Averages
	if a.Mood >= 4 {
		out = append(out, Insight{"success", "😊", "Positive Mood Week",
			"Your mood stayed strong even while managing grandchildren. The joy they bring is clearly sustaining you!"})
	} else if a.Mood < 2.5 {
		out = append(out, Insight{"warning", "💚", "Emotional Support Needed",
			"This was emotionally challenging. Consider calling a friend, joining a grandparents support group, or asking family for help."})
	}

	if a.Stress > 3.5 {
		out = append(out, Insight{"warning", "😰", "High Stress Detected",
			"Raising grandchildren is stressful. Try deep breathing when they're occupied, or step outside for fresh air during their play time."})
	}

	if a.Sleep < 3 {
		out = append(out, Insight{"warning", "😴", "Sleep Needs Attention",
			"Children can disrupt your sleep patterns. Try going to bed 30 minutes after they do, and keep your bedroom cool and quiet."})
	} else if a.Sleep >= 4 {
		out = append(out, Insight{"success", "🛌", "Great Sleep Quality",
			"Good sleep gives you energy for active grandchildren. Keep protecting your bedtime routine!"})
	}

	if s.SelfCareScore >= 75 {
		out = append(out, Insight{"success", "✨", "Excellent Self-Care",
			fmt.Sprintf("You completed %d%% of self-care while caring for grandchildren. You understand that caring for yourself helps you care for them!", int(s.SelfCareScore))})
	} else if s.SelfCareScore < 40 {
		out = append(out, Insight{"warning", "⚠️", "Increase Self-Care",
			`You're giving everything to your grandchildren but forgetting yourself. Even 10 minutes of "me time" daily makes a difference.`})
	}

	if s.MindfulMinutes >= 30 {
		out = append(out, Insight{"success", "🧘", "Mindfulness Champion",
			fmt.Sprintf("You practiced %d minutes of mindfulness while managing busy grandchildren. This patience practice serves you both!", s.MindfulMinutes)})
	} else if s.MindfulMinutes == 0 {
		out = append(out, Insight{"info", "🌸", "Try Mindfulness",
			"No quiet moments this week? Try 2 minutes of deep breathing while they play independently or watch their favorite show."})
	}
	return out
}

// moodTrend compares the two halves of a date-ordered week of check-ins.
func moodTrend(sorted []model.CheckIn) MoodTrend {
	if len(sorted) == 0 {
		return ""
	}
	if len(sorted) < 3 {
		return TrendStable
	}
	half := len(sorted) / 2
	first, second := Average(sorted[:half]).Mood, Average(sorted[half:]).Mood

	lo, hi := sorted[0].MoodRating, sorted[0].MoodRating
	for _, c := range sorted {
		lo, hi = min(lo, c.MoodRating), max(hi, c.MoodRating)
	}

	switch {
	case second > first+0.5:
		return TrendImproving
	case second < first-0.5:
		return TrendDeclining
	case hi-lo >= 3:
		return TrendVariable
	default:
		return TrendStable
	}
}
