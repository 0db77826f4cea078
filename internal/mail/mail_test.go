package mail

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandbridge/internal/model"
	"grandbridge/internal/wellness"
)

func sampleReport() *wellness.WeeklyReport {
	return &wellness.WeeklyReport{
		Since: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Stats: wellness.WeeklyStats{
			TotalPlants:      2,
			TotalCheckIns:    3,
			MindfulMinutes:   12,
			ConsistencyScore: 57.142857,
			Averages:         wellness.Averages{Count: 3, Mood: 3.6667},
		},
		Insights: []wellness.Insight{
			{Kind: "warning", Title: "Room to Grow", Message: "Try checking in at nap time."},
		},
	}
}

func TestWeeklyBody(t *testing.T) {
	u := &model.User{ID: 7, Username: "maggie", Email: "maggie@example.com"}

	plain, html, err := WeeklyBody(u, sampleReport())
	require.NoError(t, err)

	assert.Contains(t, plain, "Hi maggie, here is your week since 5 March 2025.")
	assert.Contains(t, plain, "Consistency: 57%")
	assert.Contains(t, plain, "Room to Grow Try checking in at nap time.")

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "weekly_html", []byte(html))
}

func TestWeeklyBodyEscapes(t *testing.T) {
	u := &model.User{Username: "<b>bob</b>"}
	_, html, err := WeeklyBody(u, &wellness.WeeklyReport{})
	require.NoError(t, err)
	assert.Contains(t, html, "&lt;b&gt;bob&lt;/b&gt;")
	assert.NotContains(t, html, "Average mood")
}

func TestDisabled(t *testing.T) {
	var m Mailer = Disabled{}
	assert.ErrorIs(t, m.SendWeeklyReport(context.Background(), &model.User{}, sampleReport()), ErrDisabled)
}
