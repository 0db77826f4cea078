// Package wellness holds the rules of the planting game and the wellness reports:
// vegetables, mindfulness activities, streaks, achievements and check-in scoring.
package wellness

import (
	"math/rand/v2"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	UnlockCost     = 10
	HarvestCoins   = 20
	CheckInCoins   = 3
	BreathingCoins = 10
)

var AllVegetables = []string{
	"carrot", "potato", "spinach", "cabbage", "tomato",
	"lettuce", "broccoli", "eggplant", "corn", "pepper",
}

// DefaultUnlocked are the vegetables every new account can plant.
var DefaultUnlocked = AllVegetables[:5]

type Vegetable struct {
	Key   string
	Name  string
	Image string
}

func VegetableInfo(key string) Vegetable {
	return Vegetable{Key: key, Name: cases.Title(language.English).String(key), Image: "pics/" + key + ".png"}
}

func IsVegetable(key string) bool { return slices.Contains(AllVegetables, key) }

// Locked returns the catalog entries not yet in unlocked, in catalog order.
func Locked(unlocked []string) []Vegetable {
	var out []Vegetable
	for _, k := range AllVegetables {
		if !slices.Contains(unlocked, k) {
			out = append(out, VegetableInfo(k))
		}
	}
	return out
}

type Activity struct {
	Type        string
	ID          string
	Name        string
	Description string
	Minutes     int
	Coins       int
}

var activities = map[string][]Activity{
	"breathing": {{
		Type:        "breathing",
		ID:          "478",
		Name:        "4-7-8 Breathing",
		Description: "Inhale for 4, hold for 7, exhale for 8 seconds",
		Minutes:     3,
		Coins:       5,
	}},
}

func LookupActivity(typ, id string) (Activity, bool) {
	for _, a := range activities[typ] {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

// PlantBreathing is logged when a vegetable is harvested through the breathing exercise.
var PlantBreathing = Activity{
	Type:    "breathing",
	ID:      "plant_breathing",
	Name:    "Plant Breathing",
	Minutes: 1,
	Coins:   BreathingCoins,
}

var Affirmations = []string{
	"Your love bridges the distance and gives these children stability.",
	"It's okay to feel tired - raising grandchildren takes incredible strength.",
	"Your wisdom and patience are exactly what they need right now.",
	"Every day you provide them with a home is a gift of security.",
	"You are enough, even when the days feel overwhelming.",
}

var JournalPrompts = []string{
	"What moment with your grandchild brought you joy today?",
	"How did you help them feel loved and secure today?",
	"What tradition or memory did you share with them?",
	"How did you handle a challenging parenting moment today?",
	"What reminded you of their parents, and how did you navigate those feelings?",
}

func Pick(list []string) string { return list[rand.IntN(len(list))] }
