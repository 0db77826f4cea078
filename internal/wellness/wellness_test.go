package wellness

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandbridge/internal/model"
)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 10, 30, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func TestNextStreak(t *testing.T) {
	tests := []struct {
		name    string
		last    *time.Time
		today   time.Time
		current int
		want    int
	}{
		{"first activity", nil, day(10), 0, 1},
		{"same day", ptr(day(10)), day(10).Add(5 * time.Hour), 4, 4},
		{"next day", ptr(day(9)), day(10), 4, 5},
		{"gap resets", ptr(day(7)), day(10), 4, 1},
		{"across month", ptr(time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)), day(1), 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStreak(tt.last, tt.today, tt.current))
		})
	}
}

func TestDashboardScoreCaps(t *testing.T) {
	assert.Equal(t, 0, DashboardScore(0, 0, 0))
	assert.Equal(t, 30+20+15, DashboardScore(3, 2, 15))
	assert.Equal(t, 200, DashboardScore(12, 9, 400))
}

func TestNewAchievements(t *testing.T) {
	got := NewAchievements(Progress{PlantCount: 3, Coins: 60, Streak: 3, Harvested: 1}, nil)
	names := make([]string, len(got))
	for i, m := range got {
		names[i] = m.Name
	}
	want := []string{"Planted 3 Vegetables", "Self-Care Saver", "3-Day Streak", "Mindful Grandparent"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("achievements (-want +got):\n%s", diff)
	}

	have := map[string]bool{}
	for _, n := range names {
		have[n] = true
	}
	assert.Empty(t, NewAchievements(Progress{PlantCount: 3, Coins: 60, Streak: 3, Harvested: 1}, have))

	more := NewAchievements(Progress{PlantCount: 10, Coins: 510, Streak: 10, Harvested: 20}, have)
	assert.Len(t, more, 6)
}

func TestCatalog(t *testing.T) {
	assert.Equal(t, []string{"carrot", "potato", "spinach", "cabbage", "tomato"}, DefaultUnlocked)
	assert.True(t, IsVegetable("eggplant"))
	assert.False(t, IsVegetable("kale"))
	assert.Equal(t, "Broccoli", VegetableInfo("broccoli").Name)

	locked := Locked([]string{"carrot", "potato", "spinach", "cabbage", "tomato", "corn"})
	require.Len(t, locked, 4)
	assert.Equal(t, "lettuce", locked[0].Key)

	a, ok := LookupActivity("breathing", "478")
	require.True(t, ok)
	assert.Equal(t, 3, a.Minutes)
	assert.Equal(t, 5, a.Coins)
	_, ok = LookupActivity("breathing", "box")
	assert.False(t, ok)

	assert.Contains(t, Affirmations, Pick(Affirmations))
}

func TestCheckInScoreAndInsights(t *testing.T) {
	c := &model.CheckIn{
		EnergyLevel: 2, MoodRating: 3, StressLevel: 4, SleepQuality: 2,
		AteWell: true, ConnectedWithOthers: true,
	}
	// 5*(2+3+2+2) + 5*2
	assert.Equal(t, 55, CheckInScore(c))

	got := CheckInInsights(c)
	require.Len(t, got, 5)
	assert.Contains(t, got[0], "exhausting")
	assert.Contains(t, got[3], "micro-breaks")
	assert.Contains(t, got[4], "connected")

	best := &model.CheckIn{EnergyLevel: 5, MoodRating: 5, StressLevel: 1, SleepQuality: 5,
		TookBreaks: true, AteWell: true, ConnectedWithOthers: true, DidSomethingEnjoyable: true}
	assert.Equal(t, 120, CheckInScore(best))
}

func TestClampRating(t *testing.T) {
	assert.Equal(t, 3, ClampRating(0, false))
	assert.Equal(t, 1, ClampRating(-4, true))
	assert.Equal(t, 5, ClampRating(9, true))
	assert.Equal(t, 4, ClampRating(4, true))
}

func checkin(d, mood, energy, stress, sleep int, care ...bool) model.CheckIn {
	c := model.CheckIn{Date: day(d), MoodRating: mood, EnergyLevel: energy, StressLevel: stress, SleepQuality: sleep}
	if len(care) == 4 {
		c.TookBreaks, c.AteWell, c.ConnectedWithOthers, c.DidSomethingEnjoyable = care[0], care[1], care[2], care[3]
	}
	return c
}

func TestWeeklyReport(t *testing.T) {
	checkins := []model.CheckIn{
		checkin(12, 2, 2, 4, 2, false, true, false, false),
		checkin(10, 4, 4, 2, 4, true, true, true, true),
		checkin(11, 3, 3, 3, 3, true, false, true, false),
		checkin(13, 5, 4, 1, 5, true, true, true, true),
	}
	plants := []model.Vegetable{{PlantedAt: day(10)}, {PlantedAt: day(14)}}
	logs := []model.MindfulnessLog{
		{DurationMinutes: 3, CompletedAt: day(14)},
		{DurationMinutes: 1, CompletedAt: day(15)},
	}

	r := BuildWeeklyReport(time.UTC, day(8), plants, checkins, logs, nil)
	s := r.Stats

	assert.Equal(t, 2, s.TotalPlants)
	assert.Equal(t, 4, s.TotalCheckIns)
	assert.Equal(t, 4, s.MindfulMinutes)
	assert.InDelta(t, 3.5, s.Averages.Mood, 1e-9)
	assert.InDelta(t, 2.5, s.Averages.Stress, 1e-9)
	require.NotNil(t, s.BestDay)
	assert.Equal(t, day(13), *s.BestDay)
	assert.Equal(t, day(12), *s.ToughestDay)
	// 11 of 16 boxes ticked
	assert.InDelta(t, 68.75, s.SelfCareScore, 1e-9)
	// 10,11,12,13,14,15
	assert.InDelta(t, 6.0/7*100, s.ConsistencyScore, 1e-9)

	titles := make([]string, len(r.Insights))
	for i, in := range r.Insights {
		titles[i] = in.Title
	}
	assert.Equal(t, []string{"Outstanding Consistency!"}, titles)

	// sorted by date: moods 4,3 | 2,5 -> 3.5 vs 3.5, spread 3
	assert.Equal(t, TrendVariable, r.Trend)
	assert.Equal(t, day(10), r.CheckIns[0].Date)
}

func TestWeeklyInsightsEmptyWeek(t *testing.T) {
	r := BuildWeeklyReport(time.UTC, day(1), nil, nil, nil, nil)
	assert.Equal(t, MoodTrend(""), r.Trend)
	assert.Nil(t, r.Stats.BestDay)

	var titles []string
	for _, in := range r.Insights {
		titles = append(titles, in.Title)
	}
	assert.Equal(t, []string{
		"Room to Grow",
		"Emotional Support Needed",
		"Sleep Needs Attention",
		"Increase Self-Care",
		"Try Mindfulness",
	}, titles)
}

func TestMoodTrend(t *testing.T) {
	mk := func(moods ...int) []model.CheckIn {
		out := make([]model.CheckIn, len(moods))
		for i, m := range moods {
			out[i] = model.CheckIn{Date: day(i + 1), MoodRating: m}
		}
		return out
	}
	assert.Equal(t, TrendStable, moodTrend(mk(3, 4)))
	assert.Equal(t, TrendImproving, moodTrend(mk(2, 2, 4, 4)))
	assert.Equal(t, TrendDeclining, moodTrend(mk(5, 4, 2)))
	assert.Equal(t, TrendStable, moodTrend(mk(3, 3, 3)))
	assert.Equal(t, TrendVariable, moodTrend(mk(1, 4, 4, 1)))
}
