package model

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	Address      string
	ContactInfo  string
	FamilyID     *int64

	GoogleID    *string
	GoogleToken json.RawMessage
	ICSURL      string

	LastPlantDate       *time.Time
	Streak              int
	Coins               int
	PlantCount          int
	UnlockedVegetables  []string
	MindfulnessStreak   int
	LastMindfulnessDate *time.Time
	TotalMindfulMinutes int
	CheckinStreak       int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Family struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type Event struct {
	ID          int64
	Title       string
	Start       time.Time
	End         time.Time
	Location    string
	Description string
	FamilyIDs   []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OccursOn reports whether the event spans the given calendar day.
func (e *Event) OccursOn(day time.Time) bool {
	d := DateOf(day)
	return !DateOf(e.Start).After(d) && !d.After(DateOf(e.End))
}

type Participant struct {
	UserID   int64
	Username string
	JoinedAt time.Time
}

type ChatMessage struct {
	ID        int64
	EventID   int64
	UserID    int64
	Username  string
	Content   string
	CreatedAt time.Time
}

type Vegetable struct {
	ID          int64
	UserID      int64
	Name        string
	Type        string
	PlantedAt   time.Time
	Harvested   bool
	Stage       string
	SeedImage   string
	SproutImage string
	HarvestImg  string
	Note        string
	Intention   string
	MoodBefore  *int
	MoodAfter   *int
	HarvestedAt *time.Time
}

const (
	StageSeed    = "seed"
	StageSprout  = "sprout"
	StageReady   = "ready_to_harvest"
	StageHarvest = "harvest"
)

type Achievement struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	EarnedAt    time.Time
}

type MindfulnessLog struct {
	ID              int64
	UserID          int64
	ActivityType    string
	ActivityID      string
	DurationMinutes int
	CoinsEarned     int
	CompletedAt     time.Time
}

type CheckIn struct {
	ID                    int64
	UserID                int64
	Date                  time.Time
	EnergyLevel           int
	MoodRating            int
	StressLevel           int
	SleepQuality          int
	TookBreaks            bool
	AteWell               bool
	ConnectedWithOthers   bool
	DidSomethingEnjoyable bool
	GratefulFor           string
	BiggestChallenge      string
	CreatedAt             time.Time
}

// SelfCareCount is the number of self-care boxes ticked.
func (c *CheckIn) SelfCareCount() int {
	n := 0
	for _, b := range []bool{c.TookBreaks, c.AteWell, c.ConnectedWithOthers, c.DidSomethingEnjoyable} {
		if b {
			n++
		}
	}
	return n
}

type Location struct {
	ID             int64
	Latitude       float64
	Longitude      float64
	Name           string
	Address        string
	Description    string
	OperatingHours string
	ContactInfo    string
	Capacity       string
	FoodTypes      string
	IsActive       bool
	CreatedBy      *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Memory struct {
	ID         int64
	UserID     int64
	Filename   string
	StoredName string
	Filetype   string
	Text       string
	CreatedAt  time.Time
}

type FoodRecord struct {
	ID              int64
	UserID          int64
	SubmittedAt     time.Time
	NutritionAdvice string
	Entries         []FoodEntry
}

type FoodEntry struct {
	ID        int64
	RecordID  int64
	UserID    int64
	FoodName  string
	Amount    float64
	Unit      string
	StartDate time.Time
	EndDate   time.Time
}

type Staff struct {
	ID           int64
	Name         string
	Organisation string
	Tel          string
	Email        string
	Intro        string
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Civil returns the calendar date of t as UTC midnight, comparable with DATE columns.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
