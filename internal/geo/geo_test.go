package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	london    = Point{51.5074, -0.1278}
	paris     = Point{48.8566, 2.3522}
	greenwich = Point{51.4769, 0.0005}
	nextDoor  = Point{51.5076, -0.1280}
)

func TestDistance(t *testing.T) {
	assert.InDelta(t, 343.5, Distance(london, paris), 1.0)
	assert.InDelta(t, Distance(london, paris), Distance(paris, london), 1e-9)
	assert.Zero(t, Distance(london, london))
}

func TestNearDuplicates(t *testing.T) {
	assert.True(t, Near([]Point{paris, london}, nextDoor, DuplicateKm))
	assert.False(t, Near([]Point{paris}, nextDoor, DuplicateKm))
	assert.False(t, Near(nil, london, DuplicateKm))
}

func TestWithinSortsByDistance(t *testing.T) {
	got := Within(london, []Point{paris, greenwich, nextDoor}, DefaultRadiusKm*2)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Less(t, got[0].Km, got[1].Km)
}

func TestRoundAndValid(t *testing.T) {
	assert.Equal(t, 3.14, Round2(3.14159))
	assert.Equal(t, 2.68, Round2(2.675000001))
	assert.True(t, Valid(london))
	assert.False(t, Valid(Point{91, 0}))
	assert.False(t, Valid(Point{0, -181}))
}
