package wellness

import "grandbridge/internal/model"

// CheckInScore rates a single check-in out of 120.
func CheckInScore(c *model.CheckIn) int {
	score := 5 * (c.EnergyLevel + c.MoodRating + (6 - c.StressLevel) + c.SleepQuality)
	return score + 5*c.SelfCareCount()
}

func CheckInInsights(c *model.CheckIn) []string {
	var out []string
	if c.StressLevel >= 4 {
		out = append(out, "Caring for grandchildren while managing your own needs is exhausting. Consider asking a neighbor or family member for a few hours of help.")
	}
	if c.EnergyLevel <= 2 {
		out = append(out, "Your energy is precious - it's okay to have quiet days with simple activities like reading together or watching their favorite shows.")
	}
	if c.SleepQuality <= 2 {
		out = append(out, "Children's schedules can disrupt your sleep. Try to rest when they nap or have quiet time, even if it's just for 20 minutes.")
	}
	if !c.TookBreaks {
		out = append(out, "Even while supervising children, you can take micro-breaks - sit while they play, breathe deeply during their screen time.")
	}
	if c.ConnectedWithOthers {
		out = append(out, "Staying connected with other adults is so important when you're focused on little ones all day. You're doing great!")
	}
	if c.DidSomethingEnjoyable {
		out = append(out, "Finding joy while caregiving is vital - whether it's watching them discover something new or enjoying your evening tea after bedtime.")
	}
	return out
}

type Averages struct {
	Count  int
	Mood   float64
	Energy float64
	Stress float64
	Sleep  float64
}

func Average(checkins []model.CheckIn) Averages {
	a := Averages{Count: len(checkins)}
	if a.Count == 0 {
		return a
	}
	for _, c := range checkins {
		a.Mood += float64(c.MoodRating)
		a.Energy += float64(c.EnergyLevel)
		a.Stress += float64(c.StressLevel)
		a.Sleep += float64(c.SleepQuality)
	}
	n := float64(a.Count)
	a.Mood /= n
	a.Energy /= n
	a.Stress /= n
	a.Sleep /= n
	return a
}

// ClampRating keeps form ratings inside 1..5, defaulting to 3.
func ClampRating(v int, ok bool) int {
	if !ok {
		return 3
	}
	return max(1, min(5, v))
}
