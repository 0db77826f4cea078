package wellness

type Milestone struct {
	Name        string
	Description string
}

type threshold struct {
	at int
	Milestone
}

var (
	plantMilestones = []threshold{
		{3, Milestone{"Planted 3 Vegetables", "Planted 3 vegetables!"}},
		{10, Milestone{"Planted 10 Vegetables", "Planted 10 vegetables!"}},
		{100, Milestone{"Planted 100 Vegetables", "You're a farming master!"}},
	}
	coinMilestones = []threshold{
		{50, Milestone{"Self-Care Saver", "50 wellness points earned - you're investing in yourself!"}},
		{200, Milestone{"Resilience Builder", "200 wellness points - your strength is growing!"}},
		{500, Milestone{"Caregiving Champion", "500 points! You're showing that grandparents can thrive too!"}},
	}
	streakMilestones = []threshold{
		{3, Milestone{"3-Day Streak", "Planted 3 days in a row!"}},
		{10, Milestone{"10-Day Streak", "Planted 10 days in a row!"}},
	}
	harvestMilestones = []threshold{
		{1, Milestone{"Mindful Grandparent", "First moment of mindfulness while caregiving - well done!"}},
		{5, Milestone{"Peaceful Moments", "5 mindful breaks taken - you're finding calm in the chaos!"}},
		{20, Milestone{"Zen Grandparent", "20 mindful moments - you've mastered finding peace while raising little ones!"}},
	}
)

type Progress struct {
	PlantCount int
	Coins      int
	Streak     int
	Harvested  int
}

// NewAchievements lists milestones reached by p that are not in have.
func NewAchievements(p Progress, have map[string]bool) []Milestone {
	var out []Milestone
	check := func(value int, ms []threshold) {
		for _, m := range ms {
			if value >= m.at && !have[m.Name] {
				out = append(out, m.Milestone)
			}
		}
	}
	check(p.PlantCount, plantMilestones)
	check(p.Coins, coinMilestones)
	check(p.Streak, streakMilestones)
	check(p.Harvested, harvestMilestones)
	return out
}
