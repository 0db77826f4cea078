package seed

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

type fakeStore struct {
	staff     []model.Staff
	locations []model.Location
	invalid   []string
}

func (f *fakeStore) StaffList(context.Context) ([]model.Staff, error) { return f.staff, nil }

func (f *fakeStore) CreateStaff(_ context.Context, m *model.Staff) error {
	m.ID = int64(len(f.staff) + 1)
	f.staff = append(f.staff, *m)
	return nil
}

func (f *fakeStore) BulkSaveLocations(_ context.Context, locs []model.Location, invalid []string) (*store.BulkResult, error) {
	f.locations = append(f.locations, locs...)
	f.invalid = invalid
	return &store.BulkResult{Added: len(locs), Errors: invalid}, nil
}

func load(t *testing.T) *File {
	t.Helper()
	r, err := os.Open("testdata/seed.yaml")
	require.NoError(t, err)
	defer r.Close()
	f, err := Parse(r)
	require.NoError(t, err)
	return f
}

func TestParse(t *testing.T) {
	f := load(t)
	require.Len(t, f.Staff, 2)
	require.Len(t, f.Locations, 2)

	want := Location{
		Name:           "Hackney Food Bank",
		Address:        "1 Mare Street",
		Lat:            51.5450,
		Lng:            -0.0553,
		OperatingHours: "Mon-Fri 10:00-16:00",
		FoodTypes:      "tins, fresh veg",
	}
	if diff := cmp.Diff(want, f.Locations[0]); diff != "" {
		t.Errorf("location mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "020 7946 0011", f.Staff[0].Tel)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse(strings.NewReader("staff:\n  - name: x\n    phone: 1\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("staff:\n  - name: Nobody\n"))
	assert.ErrorContains(t, err, "staff 0")
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Staff)
}

func TestApply(t *testing.T) {
	st := &fakeStore{staff: []model.Staff{{ID: 1, Name: "Tom", Email: "TOM@familyaction.example"}}}
	res, err := Apply(context.Background(), st, load(t))
	require.NoError(t, err)

	assert.Equal(t, 1, res.StaffAdded)
	assert.Equal(t, 1, res.StaffSkipped)
	assert.Equal(t, "Priya Shah", st.staff[1].Name)

	require.Len(t, st.locations, 1)
	assert.True(t, st.locations[0].IsActive)
	assert.Nil(t, st.locations[0].CreatedBy)
	assert.Equal(t, []string{"Item 1: Invalid coordinates"}, st.invalid)
	assert.Equal(t, 1, res.Locations.Added)
}
